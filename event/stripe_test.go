package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/types"
)

const chargeSucceeded = `{
	"id": "evt_1",
	"object": "event",
	"type": "charge.succeeded",
	"data": {
		"object": {
			"id": "ch_1",
			"object": "charge",
			"currency": "usd",
			"created": 1704067200,
			"description": "Monthly Partner",
			"payment_intent": "pi_1",
			"metadata": {
				"customer_ref": "42",
				"sponsor_ref": "7",
				"product_ref": "monthly_partner",
				"campaign": "spring",
				"commission": "23.50",
				"payout_address": "acct_7"
			}
		}
	}
}`

func TestStripeChargeSucceeded(t *testing.T) {
	ev, err := newRegistry().Normalize("stripe", []byte(chargeSucceeded))
	require.NoError(t, err)

	assert.Equal(t, event.Sale, ev.Type())
	assert.Equal(t, "pi_1", ev.TransactionID())
	assert.Equal(t, types.USD(2350), ev.Amount())
	assert.Equal(t, "monthly_partner", ev.ProductRef())
	assert.Equal(t, "42", ev.CustomerRef())
	assert.Equal(t, "7", ev.SponsorRef())
	assert.Equal(t, "spring", ev.Campaign())
	assert.Equal(t, "Stripe", ev.PayoutMethod())
	assert.Equal(t, "acct_7", ev.PayoutAddress())
	assert.Equal(t, "2024-01-01", ev.OccurredOn().String())
}

func TestStripeChargeCycleIsRebill(t *testing.T) {
	raw := `{"id":"evt_2","type":"charge.succeeded","data":{"object":{"id":"ch_2","created":1704067200,
		"metadata":{"billing_reason":"subscription_cycle"}}}}`
	ev, err := newRegistry().Normalize("stripe", []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, event.Rebill, ev.Type())
	assert.Equal(t, "ch_2", ev.TransactionID(), "falls back to the charge id")
}

func TestStripeInvoicedChargeDefersToInvoice(t *testing.T) {
	raw := `{"id":"evt_6","type":"charge.succeeded","data":{"object":{"id":"ch_3","created":1704067200,
		"payment_intent":"pi_3","invoice":"in_3","metadata":{"product_ref":"monthly_partner"}}}}`
	_, err := newRegistry().Normalize("stripe", []byte(raw))
	assert.ErrorIs(t, err, event.ErrUnsupportedType)

	tagged := `{"id":"evt_7","type":"charge.succeeded","data":{"object":{"id":"ch_4","created":1704067200,
		"payment_intent":"pi_4","invoice":{"id":"in_4","object":"invoice"},
		"metadata":{"billing_reason":"subscription_cycle"}}}}`
	ev, err := newRegistry().Normalize("stripe", []byte(tagged))
	require.NoError(t, err)
	assert.Equal(t, event.Rebill, ev.Type())
	assert.Equal(t, "pi_4", ev.TransactionID())
}

func TestStripeRefundSharesTransactionID(t *testing.T) {
	raw := `{"id":"evt_3","type":"charge.refunded","data":{"object":{"id":"ch_1","created":1704153600,
		"payment_intent":{"id":"pi_1","object":"payment_intent"},
		"metadata":{"commission":"23.50","product_ref":"monthly_partner"}}}}`
	ev, err := newRegistry().Normalize("stripe", []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, event.Refund, ev.Type())
	assert.Equal(t, "pi_1", ev.TransactionID())
	assert.Equal(t, int64(-2350), ev.Amount().Amount)
}

func TestStripeDispute(t *testing.T) {
	raw := `{"id":"evt_4","type":"charge.dispute.created","data":{"object":{"id":"dp_1","charge":"ch_9",
		"created":1704153600,"currency":"usd","metadata":{}}}}`
	ev, err := newRegistry().Normalize("stripe", []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, event.Chargeback, ev.Type())
	assert.Equal(t, "ch_9", ev.TransactionID())
}

func TestStripeInvoice(t *testing.T) {
	tests := []struct {
		reason string
		want   event.Type
	}{
		{"subscription_create", event.Sale},
		{"subscription_cycle", event.Rebill},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			raw := `{"id":"evt_5","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1",
				"billing_reason":"` + tt.reason + `","created":1704067200,"payment_intent":"pi_5"}}}`
			ev, err := newRegistry().Normalize("stripe", []byte(raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Type())
			assert.Equal(t, "pi_5", ev.TransactionID())
		})
	}
}

func TestStripeRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unsupported event", `{"id":"e","type":"customer.created","data":{"object":{"id":"cus_1"}}}`, event.ErrUnsupportedType},
		{"manual invoice", `{"id":"e","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1","billing_reason":"manual","created":1}}}`, event.ErrUnsupportedType},
		{"no data", `{"id":"e","type":"charge.succeeded"}`, event.ErrInvalidPayload},
		{"no created", `{"id":"e","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`, event.ErrInvalidPayload},
		{"malformed", `not json`, event.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRegistry().Normalize("stripe", []byte(tt.raw))
			require.ErrorIs(t, err, tt.want)
		})
	}
}
