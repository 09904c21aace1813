package store

import (
	"context"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/types"
)

// Store is the unified storage interface for the ledger and referral
// edges.
type Store interface {
	// Commission methods
	InsertCommission(ctx context.Context, c *commission.Commission) (bool, error)
	GetCommission(ctx context.Context, commissionID id.CommissionID) (*commission.Commission, error)
	GetByTransaction(ctx context.Context, transactionID string, polarity event.Polarity) (*commission.Commission, error)
	MarkRefunded(ctx context.Context, commissionID id.CommissionID, date types.Date) error
	ListCommissions(ctx context.Context, opts commission.ListOpts) ([]*commission.Commission, error)
	SumEarnings(ctx context.Context, earnerID string) (commission.Totals, error)
	DeleteCommissions(ctx context.Context, opts commission.DeleteOpts) (int64, error)

	// Referral methods
	InsertEdgeIfAbsent(ctx context.Context, e *referral.Edge) (bool, error)
	GetEdge(ctx context.Context, customerRef string) (*referral.Edge, error)
	ListEdges(ctx context.Context, affiliateID string, opts referral.ListOpts) ([]*referral.Edge, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ commission.Store = Store(nil)
	_ referral.Store   = Store(nil)
)
