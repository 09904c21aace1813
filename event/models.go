// Package event defines the canonical PaymentEvent and the normalizers that
// map provider payloads onto it.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/affiliate/types"
)

// Normalization errors.
var (
	ErrInvalidPayload  = errors.New("affiliate: invalid payload")
	ErrUnsupportedType = errors.New("affiliate: unsupported transaction type")
)

// Type is the lifecycle kind of a payment event.
type Type string

// Event types.
const (
	Sale       Type = "sale"
	Rebill     Type = "rebill"
	Refund     Type = "refund"
	Chargeback Type = "chargeback"
)

// ParseType parses a canonical type name, case-insensitively.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Sale, Rebill, Refund, Chargeback:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

// IsReversal reports whether t negates a prior Sale or Rebill.
func (t Type) IsReversal() bool { return t == Refund || t == Chargeback }

// Polarity returns Negative for reversals and Positive otherwise.
func (t Type) Polarity() Polarity {
	if t.IsReversal() {
		return Negative
	}
	return Positive
}

// Polarity is the sign of a ledger entry. Together with the transaction id
// it forms the ledger's deduplication key.
type Polarity int8

// Polarities.
const (
	Positive Polarity = 1
	Negative Polarity = -1
)

func (p Polarity) String() string {
	if p == Negative {
		return "negative"
	}
	return "positive"
}

// Fields is the input to NewPaymentEvent.
type Fields struct {
	Provider      string
	TransactionID string
	Type          Type
	Amount        types.Money
	ProductRef    string
	CustomerRef   string
	SponsorRef    string
	Campaign      string
	Description   string
	OccurredAt    time.Time
	PayoutMethod  string
	PayoutAddress string
}

// PaymentEvent is a provider-agnostic, immutable payment lifecycle event.
type PaymentEvent struct {
	f Fields
}

// NewPaymentEvent validates f and returns the event. Reversal amounts are
// forced non-positive and sale amounts non-negative.
func NewPaymentEvent(f Fields) (*PaymentEvent, error) {
	f.TransactionID = strings.TrimSpace(f.TransactionID)
	if f.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id is required", ErrInvalidPayload)
	}
	if _, err := ParseType(string(f.Type)); err != nil {
		return nil, err
	}
	if f.OccurredAt.IsZero() {
		return nil, fmt.Errorf("%w: occurred_at is required", ErrInvalidPayload)
	}
	if f.Amount.Currency == "" {
		f.Amount.Currency = "usd"
	}
	if f.Type.IsReversal() != f.Amount.IsNegative() && !f.Amount.IsZero() {
		f.Amount = f.Amount.Negate()
	}
	f.OccurredAt = f.OccurredAt.UTC()
	return &PaymentEvent{f: f}, nil
}

// Fields returns a copy of the event's fields.
func (e *PaymentEvent) Fields() Fields { return e.f }

// Provider returns the provider id the event was normalized from.
func (e *PaymentEvent) Provider() string { return e.f.Provider }

// TransactionID returns the provider-unique transaction id.
func (e *PaymentEvent) TransactionID() string { return e.f.TransactionID }

// Type returns the event type.
func (e *PaymentEvent) Type() Type { return e.f.Type }

// Amount returns the signed commission amount.
func (e *PaymentEvent) Amount() types.Money { return e.f.Amount }

// ProductRef returns the catalog slug or provider product id.
func (e *PaymentEvent) ProductRef() string { return e.f.ProductRef }

// CustomerRef returns the buying user's reference.
func (e *PaymentEvent) CustomerRef() string { return e.f.CustomerRef }

// SponsorRef returns the referring affiliate's reference.
func (e *PaymentEvent) SponsorRef() string { return e.f.SponsorRef }

// Campaign returns the affiliate campaign tag.
func (e *PaymentEvent) Campaign() string { return e.f.Campaign }

// Description returns the human-readable line description.
func (e *PaymentEvent) Description() string { return e.f.Description }

// OccurredAt returns the event time in UTC.
func (e *PaymentEvent) OccurredAt() time.Time { return e.f.OccurredAt }

// OccurredOn returns the calendar date of the event in UTC.
func (e *PaymentEvent) OccurredOn() types.Date { return types.DateOf(e.f.OccurredAt) }

// PayoutMethod returns the payout channel, e.g. "Clickbank".
func (e *PaymentEvent) PayoutMethod() string { return e.f.PayoutMethod }

// PayoutAddress returns the payout account on that channel.
func (e *PaymentEvent) PayoutAddress() string { return e.f.PayoutAddress }

// MarshalJSON implements json.Marshaler for logging and outcomes.
func (e *PaymentEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Provider      string      `json:"provider"`
		TransactionID string      `json:"transaction_id"`
		Type          Type        `json:"type"`
		Amount        types.Money `json:"amount"`
		ProductRef    string      `json:"product_ref,omitempty"`
		CustomerRef   string      `json:"customer_ref,omitempty"`
		SponsorRef    string      `json:"sponsor_ref,omitempty"`
		Campaign      string      `json:"campaign,omitempty"`
		OccurredAt    time.Time   `json:"occurred_at"`
		PayoutMethod  string      `json:"payout_method,omitempty"`
		PayoutAddress string      `json:"payout_address,omitempty"`
	}{
		Provider:      e.f.Provider,
		TransactionID: e.f.TransactionID,
		Type:          e.f.Type,
		Amount:        e.f.Amount,
		ProductRef:    e.f.ProductRef,
		CustomerRef:   e.f.CustomerRef,
		SponsorRef:    e.f.SponsorRef,
		Campaign:      e.f.Campaign,
		OccurredAt:    e.f.OccurredAt,
		PayoutMethod:  e.f.PayoutMethod,
		PayoutAddress: e.f.PayoutAddress,
	})
}
