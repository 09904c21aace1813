package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/affiliate/types"
)

// ClickBankProvider is the provider id handled by ClickBank.
const ClickBankProvider = "clickbank"

// clickBankPayload is the instant-notification body forwarded by the
// ClickBank relay.
type clickBankPayload struct {
	TransactionType looseString `json:"transaction_type"`
	Commission      looseString `json:"commission"`
	ProductID       looseString `json:"product_id"`
	TransactionID   looseString `json:"transaction_id"`
	Affiliate       looseString `json:"cb_affiliate"`
	Campaign        looseString `json:"campaign"`
	CustomerID      looseString `json:"customer_wpid"`
	SponsorID       looseString `json:"sponsor_wpid"`
	ProductName     looseString `json:"product_name"`
	Currency        looseString `json:"currency"`
	Date            looseString `json:"date"`
}

var clickBankTypes = map[string]Type{
	"SALE":      Sale,
	"TEST_SALE": Sale,
	"BILL":      Rebill,
	"TEST_BILL": Rebill,
	"RFND":      Refund,
	"CGBK":      Chargeback,
}

// ClickBank normalizes ClickBank notifications.
type ClickBank struct {
	now func() time.Time
}

// ClickBankOption configures a ClickBank normalizer.
type ClickBankOption func(*ClickBank)

// WithClickBankClock sets the clock used for notifications without a date.
func WithClickBankClock(now func() time.Time) ClickBankOption {
	return func(c *ClickBank) { c.now = now }
}

// NewClickBank returns a ClickBank normalizer.
func NewClickBank(opts ...ClickBankOption) *ClickBank {
	c := &ClickBank{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider implements Normalizer.
func (c *ClickBank) Provider() string { return ClickBankProvider }

// Normalize implements Normalizer.
func (c *ClickBank) Normalize(raw []byte) (*PaymentEvent, error) {
	var p clickBankPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: clickbank: %v", ErrInvalidPayload, err)
	}

	kind, ok := clickBankTypes[strings.ToUpper(string(p.TransactionType))]
	if !ok {
		return nil, fmt.Errorf("%w: clickbank %q", ErrUnsupportedType, p.TransactionType)
	}

	amount := types.Zero(string(p.Currency))
	if p.Commission != "" {
		m, err := types.ParseMoney(string(p.Commission), string(p.Currency))
		if err != nil {
			return nil, fmt.Errorf("%w: clickbank commission: %v", ErrInvalidPayload, err)
		}
		amount = m
	}

	occurred := c.now()
	if p.Date != "" {
		t, err := parseTime(string(p.Date))
		if err != nil {
			return nil, err
		}
		occurred = t
	}

	return NewPaymentEvent(Fields{
		Provider:      ClickBankProvider,
		TransactionID: string(p.TransactionID),
		Type:          kind,
		Amount:        amount,
		ProductRef:    string(p.ProductID),
		CustomerRef:   string(p.CustomerID),
		SponsorRef:    string(p.SponsorID),
		Campaign:      string(p.Campaign),
		Description:   string(p.ProductName),
		OccurredAt:    occurred,
		PayoutMethod:  "Clickbank",
		PayoutAddress: string(p.Affiliate),
	})
}
