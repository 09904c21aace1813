// Package memory provides in-process implementations of the affiliate
// store and the account collaborator, for tests, replay and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/store"
	"github.com/xraph/affiliate/types"
)

var _ store.Store = (*Store)(nil)

type txKey struct {
	transactionID string
	polarity      event.Polarity
}

type Store struct {
	mu sync.RWMutex

	// Commission storage
	commissions map[string]*commission.Commission
	byTx        map[txKey]string

	// Referral storage
	edges map[string]*referral.Edge
}

func New() *Store {
	return &Store{
		commissions: make(map[string]*commission.Commission),
		byTx:        make(map[txKey]string),
		edges:       make(map[string]*referral.Edge),
	}
}

// Commission Store implementation
func (s *Store) InsertCommission(_ context.Context, c *commission.Commission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := txKey{c.TransactionID, c.Polarity}
	if _, exists := s.byTx[key]; exists {
		return false, nil
	}
	cp := *c
	s.commissions[c.ID.String()] = &cp
	s.byTx[key] = c.ID.String()
	return true, nil
}

func (s *Store) GetCommission(_ context.Context, commissionID id.CommissionID) (*commission.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.commissions[commissionID.String()]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, commission.ErrNotFound
}

func (s *Store) GetByTransaction(_ context.Context, transactionID string, polarity event.Polarity) (*commission.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cid, ok := s.byTx[txKey{transactionID, polarity}]; ok {
		cp := *s.commissions[cid]
		return &cp, nil
	}
	return nil, commission.ErrNotFound
}

func (s *Store) MarkRefunded(_ context.Context, commissionID id.CommissionID, date types.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commissions[commissionID.String()]
	if !ok {
		return commission.ErrNotFound
	}
	c.RefundDate = date
	c.Touch()
	return nil
}

func (s *Store) ListCommissions(_ context.Context, opts commission.ListOpts) ([]*commission.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*commission.Commission, 0)
	for _, c := range s.commissions {
		if matches(c, opts) {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].ID.String() > result[j].ID.String()
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) SumEarnings(_ context.Context, earnerID string) (commission.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t commission.Totals
	for _, c := range s.commissions {
		if c.EarnerID != earnerID {
			continue
		}
		t.Count++
		if c.Amount.Amount < 0 {
			t.Reversed += c.Amount.Amount
		} else {
			t.Gross += c.Amount.Amount
		}
	}
	return t, nil
}

func (s *Store) DeleteCommissions(_ context.Context, opts commission.DeleteOpts) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.IsEmpty() {
		return 0, nil
	}
	var n int64
	for cid, c := range s.commissions {
		if (opts.ActorID == "" || c.ActorID == opts.ActorID) &&
			(opts.EarnerID == "" || c.EarnerID == opts.EarnerID) {
			delete(s.commissions, cid)
			delete(s.byTx, txKey{c.TransactionID, c.Polarity})
			n++
		}
	}
	return n, nil
}

// Referral Store implementation
func (s *Store) InsertEdgeIfAbsent(_ context.Context, e *referral.Edge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.edges[e.CustomerRef]; exists {
		return false, nil
	}
	cp := *e
	s.edges[e.CustomerRef] = &cp
	return true, nil
}

func (s *Store) GetEdge(_ context.Context, customerRef string) (*referral.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.edges[customerRef]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, referral.ErrNotFound
}

func (s *Store) ListEdges(_ context.Context, affiliateID string, opts referral.ListOpts) ([]*referral.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*referral.Edge, 0)
	for _, e := range s.edges {
		if e.AffiliateID == affiliateID {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Helper functions
func matches(c *commission.Commission, opts commission.ListOpts) bool {
	return (opts.EarnerID == "" || c.EarnerID == opts.EarnerID) &&
		(opts.ActorID == "" || c.ActorID == opts.ActorID) &&
		(opts.Campaign == "" || c.Campaign == opts.Campaign) &&
		(opts.TransactionID == "" || c.TransactionID == opts.TransactionID)
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
