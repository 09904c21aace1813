package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/types"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newRegistry() *event.Registry {
	return event.NewRegistry(
		event.NewClickBank(event.WithClickBankClock(func() time.Time { return fixedNow })),
		event.NewStripe(),
	)
}

func TestClickBankTypeMapping(t *testing.T) {
	tests := []struct {
		txType string
		want   event.Type
	}{
		{"SALE", event.Sale},
		{"TEST_SALE", event.Sale},
		{"BILL", event.Rebill},
		{"TEST_BILL", event.Rebill},
		{"RFND", event.Refund},
		{"CGBK", event.Chargeback},
		{"sale", event.Sale},
	}

	reg := newRegistry()
	for _, tt := range tests {
		t.Run(tt.txType, func(t *testing.T) {
			raw := []byte(`{"transaction_type":"` + tt.txType + `","transaction_id":"CB-1","commission":"47.00"}`)
			ev, err := reg.Normalize("clickbank", raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Type())
			assert.Equal(t, "CB-1", ev.TransactionID())
		})
	}
}

func TestClickBankFields(t *testing.T) {
	raw := []byte(`{
		"transaction_type": "SALE",
		"transaction_id": "RCPT123",
		"commission": 48.5,
		"product_id": 1000,
		"cb_affiliate": "topseller",
		"campaign": "spring",
		"customer_wpid": "42",
		"sponsor_wpid": "7",
		"product_name": "Monthly Partner",
		"date": "2024-01-01 10:30:00"
	}`)

	ev, err := newRegistry().Normalize("ClickBank", raw)
	require.NoError(t, err)

	assert.Equal(t, event.ClickBankProvider, ev.Provider())
	assert.Equal(t, types.USD(4850), ev.Amount())
	assert.Equal(t, "1000", ev.ProductRef())
	assert.Equal(t, "42", ev.CustomerRef())
	assert.Equal(t, "7", ev.SponsorRef())
	assert.Equal(t, "spring", ev.Campaign())
	assert.Equal(t, "Monthly Partner", ev.Description())
	assert.Equal(t, "Clickbank", ev.PayoutMethod())
	assert.Equal(t, "topseller", ev.PayoutAddress())
	assert.Equal(t, "2024-01-01", ev.OccurredOn().String())
}

func TestClickBankDefaultsDateToClock(t *testing.T) {
	ev, err := newRegistry().Normalize("clickbank", []byte(`{"transaction_type":"BILL","transaction_id":"X"}`))
	require.NoError(t, err)
	assert.Equal(t, fixedNow, ev.OccurredAt())
	assert.True(t, ev.Amount().IsZero())
}

func TestReversalAmountIsNonPositive(t *testing.T) {
	reg := newRegistry()

	refund, err := reg.Normalize("clickbank", []byte(`{"transaction_type":"RFND","transaction_id":"T","commission":"50"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(-5000), refund.Amount().Amount)

	already, err := reg.Normalize("clickbank", []byte(`{"transaction_type":"CGBK","transaction_id":"T","commission":"-50"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(-5000), already.Amount().Amount)

	sale, err := reg.Normalize("clickbank", []byte(`{"transaction_type":"SALE","transaction_id":"T","commission":"-50"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), sale.Amount().Amount)
}

func TestClickBankRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unsupported type", `{"transaction_type":"INSF","transaction_id":"T"}`, event.ErrUnsupportedType},
		{"missing type", `{"transaction_id":"T"}`, event.ErrUnsupportedType},
		{"missing transaction id", `{"transaction_type":"SALE"}`, event.ErrInvalidPayload},
		{"blank transaction id", `{"transaction_type":"SALE","transaction_id":"   "}`, event.ErrInvalidPayload},
		{"malformed json", `{"transaction_type":`, event.ErrInvalidPayload},
		{"bad commission", `{"transaction_type":"SALE","transaction_id":"T","commission":"1.234"}`, event.ErrInvalidPayload},
		{"bad date", `{"transaction_type":"SALE","transaction_id":"T","date":"yesterday"}`, event.ErrInvalidPayload},
	}

	reg := newRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := reg.Normalize("clickbank", []byte(tt.raw))
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, ev)
		})
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	_, err := newRegistry().Normalize("paypal", []byte(`{}`))
	require.ErrorIs(t, err, event.ErrInvalidPayload)
}

func TestRegistryEmptyPayload(t *testing.T) {
	_, err := newRegistry().Normalize("clickbank", nil)
	require.ErrorIs(t, err, event.ErrInvalidPayload)
}

func TestRegistryProviders(t *testing.T) {
	assert.ElementsMatch(t, []string{"clickbank", "stripe"}, newRegistry().Providers())
}

func TestParseType(t *testing.T) {
	got, err := event.ParseType(" Refund ")
	require.NoError(t, err)
	assert.Equal(t, event.Refund, got)
	assert.True(t, got.IsReversal())
	assert.Equal(t, event.Negative, got.Polarity())
	assert.Equal(t, event.Positive, event.Rebill.Polarity())

	_, err = event.ParseType("upgrade")
	require.ErrorIs(t, err, event.ErrUnsupportedType)
}

func TestNewPaymentEventRequiresTime(t *testing.T) {
	_, err := event.NewPaymentEvent(event.Fields{TransactionID: "T", Type: event.Sale})
	require.ErrorIs(t, err, event.ErrInvalidPayload)
}
