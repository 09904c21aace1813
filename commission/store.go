package commission

import (
	"context"
	"errors"

	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/types"
)

// ErrNotFound is returned when no commission matches.
var ErrNotFound = errors.New("affiliate: commission not found")

type Store interface {
	// InsertCommission stores c unless an entry with the same
	// (TransactionID, Polarity) exists, and reports whether it was written.
	InsertCommission(ctx context.Context, c *Commission) (bool, error)
	GetCommission(ctx context.Context, commissionID id.CommissionID) (*Commission, error)
	GetByTransaction(ctx context.Context, transactionID string, polarity event.Polarity) (*Commission, error)
	MarkRefunded(ctx context.Context, commissionID id.CommissionID, date types.Date) error
	ListCommissions(ctx context.Context, opts ListOpts) ([]*Commission, error)
	SumEarnings(ctx context.Context, earnerID string) (Totals, error)
	DeleteCommissions(ctx context.Context, opts DeleteOpts) (int64, error)
}

// ListOpts filters ListCommissions. Empty fields match everything. Results
// are ordered by date, newest first.
type ListOpts struct {
	EarnerID      string
	ActorID       string
	Campaign      string
	TransactionID string
	Limit         int
	Offset        int
}

// DeleteOpts selects test fixtures to purge. At least one field is required.
type DeleteOpts struct {
	ActorID  string
	EarnerID string
}

// IsEmpty reports whether no filter is set.
func (o DeleteOpts) IsEmpty() bool { return o.ActorID == "" && o.EarnerID == "" }
