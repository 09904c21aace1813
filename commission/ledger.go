// Package commission implements the commission ledger: exactly-once
// recording of sale and rebill commissions and matching of refunds and
// chargebacks to the entries they reverse.
package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/types"
)

// ErrEmptyFilter is returned by Purge when no filter is given.
var ErrEmptyFilter = errors.New("affiliate: purge requires an actor or earner filter")

// Ledger applies payment events to a Store. The store's conditional insert
// on (transaction id, polarity) is what makes Apply idempotent.
type Ledger struct {
	store    Store
	currency string
	now      func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCurrency sets the currency earnings summaries are reported in.
func WithCurrency(currency string) Option {
	return func(l *Ledger) { l.currency = currency }
}

// WithClock sets the clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger returns a ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, currency: "usd", now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Apply records ev. Only storage failures are returned as errors.
func (l *Ledger) Apply(ctx context.Context, ev *event.PaymentEvent) (*Result, error) {
	if ev.Type().IsReversal() {
		return l.reverse(ctx, ev)
	}
	return l.record(ctx, ev)
}

func (l *Ledger) record(ctx context.Context, ev *event.PaymentEvent) (*Result, error) {
	c := l.newEntry(ev)
	c.Amount = ev.Amount()
	c.ActorID = ev.CustomerRef()
	c.EarnerID = ev.SponsorRef()
	c.ProductRef = ev.ProductRef()
	c.Campaign = ev.Campaign()

	inserted, err := l.store.InsertCommission(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", ev.TransactionID(), err)
	}
	if inserted {
		return &Result{Kind: Recorded, Commission: c}, nil
	}

	existing, err := l.store.GetByTransaction(ctx, ev.TransactionID(), event.Positive)
	if err != nil {
		return nil, fmt.Errorf("load duplicate %s: %w", ev.TransactionID(), err)
	}
	return &Result{Kind: DuplicateIgnored, Commission: existing}, nil
}

func (l *Ledger) reverse(ctx context.Context, ev *event.PaymentEvent) (*Result, error) {
	original, err := l.store.GetByTransaction(ctx, ev.TransactionID(), event.Positive)
	if errors.Is(err, ErrNotFound) {
		return &Result{Kind: UnmatchedReversal}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match reversal %s: %w", ev.TransactionID(), err)
	}

	date := ev.OccurredOn()
	c := l.newEntry(ev)
	c.Amount = original.Amount.Negate()
	c.ActorID = original.ActorID
	c.EarnerID = original.EarnerID
	c.ProductRef = original.ProductRef
	c.Campaign = original.Campaign
	c.RefundDate = date
	if c.Description == "" {
		c.Description = original.Description
	}

	inserted, err := l.store.InsertCommission(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("record reversal %s: %w", ev.TransactionID(), err)
	}
	if !inserted {
		existing, err := l.store.GetByTransaction(ctx, ev.TransactionID(), event.Negative)
		if err != nil {
			return nil, fmt.Errorf("load duplicate reversal %s: %w", ev.TransactionID(), err)
		}
		// Finish a reversal whose original was never marked.
		if !original.IsRefunded() {
			if err := l.markRefunded(ctx, original, existing.RefundDate); err != nil {
				return nil, err
			}
		}
		return &Result{Kind: DuplicateIgnored, Commission: existing, Original: original}, nil
	}

	if err := l.markRefunded(ctx, original, date); err != nil {
		return nil, err
	}
	return &Result{Kind: Recorded, Commission: c, Original: original}, nil
}

func (l *Ledger) markRefunded(ctx context.Context, original *Commission, date types.Date) error {
	if err := l.store.MarkRefunded(ctx, original.ID, date); err != nil {
		return fmt.Errorf("mark %s refunded: %w", original.ID, err)
	}
	original.RefundDate = date
	return nil
}

func (l *Ledger) newEntry(ev *event.PaymentEvent) *Commission {
	date := ev.OccurredOn()
	entity := types.NewEntity()
	entity.CreatedAt = l.now().UTC()
	entity.UpdatedAt = entity.CreatedAt
	return &Commission{
		Entity:              entity,
		ID:                  id.NewCommissionID(),
		Date:                date,
		Description:         ev.Description(),
		TransactionID:       ev.TransactionID(),
		Polarity:            ev.Type().Polarity(),
		PayoutDate:          date,
		PayoutMethod:        ev.PayoutMethod(),
		PayoutAddress:       ev.PayoutAddress(),
		PayoutTransactionID: ev.TransactionID(),
		Provider:            ev.Provider(),
	}
}

// Get returns a commission by id.
func (l *Ledger) Get(ctx context.Context, commissionID id.CommissionID) (*Commission, error) {
	return l.store.GetCommission(ctx, commissionID)
}

// List returns commissions matching opts.
func (l *Ledger) List(ctx context.Context, opts ListOpts) ([]*Commission, error) {
	return l.store.ListCommissions(ctx, opts)
}

// Earnings summarises what earnerID has earned and lost to reversals.
func (l *Ledger) Earnings(ctx context.Context, earnerID string) (*Summary, error) {
	t, err := l.store.SumEarnings(ctx, earnerID)
	if err != nil {
		return nil, fmt.Errorf("earnings for %s: %w", earnerID, err)
	}
	gross := types.Money{Amount: t.Gross, Currency: l.currency}
	reversed := types.Money{Amount: t.Reversed, Currency: l.currency}
	return &Summary{
		EarnerID: earnerID,
		Gross:    gross,
		Reversed: reversed,
		Net:      gross.Add(reversed),
		Count:    t.Count,
	}, nil
}

// Purge deletes test-fixture entries matching opts and returns how many
// were removed.
func (l *Ledger) Purge(ctx context.Context, opts DeleteOpts) (int64, error) {
	if opts.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	return l.store.DeleteCommissions(ctx, opts)
}
