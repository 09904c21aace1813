package referral

import (
	"context"
	"errors"
)

type Store interface {
	// InsertEdgeIfAbsent stores e unless the customer already has an edge.
	// It reports whether e was written. The check and the write must be a
	// single atomic step.
	InsertEdgeIfAbsent(ctx context.Context, e *Edge) (bool, error)
	GetEdge(ctx context.Context, customerRef string) (*Edge, error)
	ListEdges(ctx context.Context, affiliateID string, opts ListOpts) ([]*Edge, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}

// ErrNotFound is returned by GetEdge when the customer has no sponsor.
var ErrNotFound = errors.New("affiliate: referral not found")
