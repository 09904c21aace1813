package commission

import (
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/types"
)

// Commission is a ledger entry. Sales and rebills create positive entries;
// a matched refund or chargeback creates a negative entry under the same
// transaction id. Entries are never updated except for RefundDate.
type Commission struct {
	types.Entity
	ID                  id.CommissionID `json:"id"`
	Date                types.Date      `json:"date"`
	Amount              types.Money     `json:"amount"`
	Description         string          `json:"description"`
	TransactionID       string          `json:"transaction_id"`
	Polarity            event.Polarity  `json:"polarity"`
	Campaign            string          `json:"campaign"`
	ActorID             string          `json:"actor_id"`
	EarnerID            string          `json:"earner_id"`
	PayoutDate          types.Date      `json:"payout_date"`
	PayoutMethod        string          `json:"payout_method"`
	PayoutAddress       string          `json:"payout_address"`
	PayoutTransactionID string          `json:"payout_transaction_id"`
	RefundDate          types.Date      `json:"refund_date"`
	Provider            string          `json:"provider"`
	ProductRef          string          `json:"product_ref"`
}

// IsReversal reports whether c negates an earlier entry.
func (c *Commission) IsReversal() bool { return c.Polarity == event.Negative }

// IsRefunded reports whether a positive entry has been reversed.
func (c *Commission) IsRefunded() bool { return !c.RefundDate.IsZero() }

// Kind is the outcome of applying an event to the ledger.
type Kind string

const (
	Recorded          Kind = "recorded"
	DuplicateIgnored  Kind = "duplicate_ignored"
	UnmatchedReversal Kind = "unmatched_reversal"
)

// Result is returned by Ledger.Apply. Commission is the entry written, or
// the existing entry when the event was a duplicate. Original is the
// positive entry a reversal matched.
type Result struct {
	Kind       Kind        `json:"kind"`
	Commission *Commission `json:"commission,omitempty"`
	Original   *Commission `json:"original,omitempty"`
}

// Totals is the raw aggregate a store computes for one earner, in minor
// units.
type Totals struct {
	Gross    int64
	Reversed int64
	Count    int
}

// Summary is an earner's earnings report.
type Summary struct {
	EarnerID string      `json:"earner_id"`
	Gross    types.Money `json:"gross"`
	Reversed types.Money `json:"reversed"`
	Net      types.Money `json:"net"`
	Count    int         `json:"count"`
}
