package commission_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/store/memory"
	"github.com/xraph/affiliate/types"
)

func newEvent(t *testing.T, typ event.Type, tx string, cents int64, day int) *event.PaymentEvent {
	t.Helper()
	ev, err := event.NewPaymentEvent(event.Fields{
		Provider:      "clickbank",
		TransactionID: tx,
		Type:          typ,
		Amount:        types.USD(cents),
		ProductRef:    "monthly_partner",
		CustomerRef:   "U",
		SponsorRef:    "S",
		Campaign:      "spring",
		Description:   "Monthly Partner",
		OccurredAt:    time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC),
		PayoutMethod:  "Clickbank",
		PayoutAddress: "topseller",
	})
	require.NoError(t, err)
	return ev
}

func TestApplySaleIsIdempotent(t *testing.T) {
	store := memory.New()
	l := commission.NewLedger(store)
	ctx := context.Background()

	first, err := l.Apply(ctx, newEvent(t, event.Sale, "T1", 9700, 1))
	require.NoError(t, err)
	assert.Equal(t, commission.Recorded, first.Kind)

	c := first.Commission
	assert.Equal(t, types.USD(9700), c.Amount)
	assert.Equal(t, "U", c.ActorID)
	assert.Equal(t, "S", c.EarnerID)
	assert.Equal(t, "2024-01-01", c.Date.String())
	assert.Equal(t, "2024-01-01", c.PayoutDate.String())
	assert.Equal(t, "Clickbank", c.PayoutMethod)
	assert.Equal(t, "topseller", c.PayoutAddress)
	assert.Equal(t, "T1", c.PayoutTransactionID)
	assert.Equal(t, "spring", c.Campaign)
	assert.True(t, c.RefundDate.IsZero())
	assert.False(t, c.ID.IsNil())

	for range 3 {
		again, err := l.Apply(ctx, newEvent(t, event.Sale, "T1", 9700, 1))
		require.NoError(t, err)
		assert.Equal(t, commission.DuplicateIgnored, again.Kind)
		assert.Equal(t, c.ID.String(), again.Commission.ID.String())
	}

	all, err := l.List(ctx, commission.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestApplyRefundMatchesOriginal(t *testing.T) {
	store := memory.New()
	l := commission.NewLedger(store)
	ctx := context.Background()

	sale, err := l.Apply(ctx, newEvent(t, event.Sale, "T1", 5000, 1))
	require.NoError(t, err)

	refund, err := l.Apply(ctx, newEvent(t, event.Refund, "T1", 0, 5))
	require.NoError(t, err)
	require.Equal(t, commission.Recorded, refund.Kind)

	neg := refund.Commission
	assert.Equal(t, int64(-5000), neg.Amount.Amount)
	assert.Equal(t, "T1", neg.TransactionID)
	assert.Equal(t, "T1", neg.PayoutTransactionID)
	assert.Equal(t, event.Negative, neg.Polarity)
	assert.Equal(t, "2024-01-05", neg.RefundDate.String())
	assert.Equal(t, "U", neg.ActorID)
	assert.Equal(t, "S", neg.EarnerID)
	assert.True(t, neg.IsReversal())

	original, err := l.Get(ctx, sale.Commission.ID)
	require.NoError(t, err)
	assert.True(t, original.IsRefunded())
	assert.Equal(t, "2024-01-05", original.RefundDate.String())

	dup, err := l.Apply(ctx, newEvent(t, event.Chargeback, "T1", 5000, 6))
	require.NoError(t, err)
	assert.Equal(t, commission.DuplicateIgnored, dup.Kind)

	all, err := l.List(ctx, commission.ListOpts{TransactionID: "T1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestApplyUnmatchedReversal(t *testing.T) {
	l := commission.NewLedger(memory.New())
	ctx := context.Background()

	res, err := l.Apply(ctx, newEvent(t, event.Refund, "UNKNOWN", 5000, 1))
	require.NoError(t, err)
	assert.Equal(t, commission.UnmatchedReversal, res.Kind)
	assert.Nil(t, res.Commission)

	all, err := l.List(ctx, commission.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

// noMark skips MarkRefunded, as if the process died between writing a
// reversal and updating the original.
type noMark struct{ *memory.Store }

func (noMark) MarkRefunded(context.Context, id.CommissionID, types.Date) error { return nil }

func TestDuplicateReversalRepairsOriginal(t *testing.T) {
	store := memory.New()
	l := commission.NewLedger(store)
	ctx := context.Background()

	sale, err := l.Apply(ctx, newEvent(t, event.Sale, "T1", 5000, 1))
	require.NoError(t, err)

	ev := newEvent(t, event.Refund, "T1", 0, 3)
	_, err = commission.NewLedger(noMark{store}).Apply(ctx, ev)
	require.NoError(t, err)

	original, err := l.Get(ctx, sale.Commission.ID)
	require.NoError(t, err)
	require.False(t, original.IsRefunded())

	res, err := l.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, commission.DuplicateIgnored, res.Kind)

	original, err = l.Get(ctx, sale.Commission.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", original.RefundDate.String())
}

func TestEarningsAndPurge(t *testing.T) {
	l := commission.NewLedger(memory.New())
	ctx := context.Background()

	for _, ev := range []*event.PaymentEvent{
		newEvent(t, event.Sale, "T1", 9700, 1),
		newEvent(t, event.Rebill, "T2", 4700, 8),
		newEvent(t, event.Refund, "T2", 0, 9),
	} {
		_, err := l.Apply(ctx, ev)
		require.NoError(t, err)
	}

	sum, err := l.Earnings(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, types.USD(14400), sum.Gross)
	assert.Equal(t, types.USD(-4700), sum.Reversed)
	assert.Equal(t, types.USD(9700), sum.Net)
	assert.Equal(t, 3, sum.Count)

	byDate, err := l.List(ctx, commission.ListOpts{EarnerID: "S", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, "2024-01-09", byDate[0].Date.String())

	_, err = l.Purge(ctx, commission.DeleteOpts{})
	require.ErrorIs(t, err, commission.ErrEmptyFilter)

	n, err := l.Purge(ctx, commission.DeleteOpts{ActorID: "U"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	sum, err = l.Earnings(ctx, "S")
	require.NoError(t, err)
	assert.Zero(t, sum.Count)
}
