// Package referral assigns and queries customer-to-sponsor edges.
//
// An edge is write-once: the first successful conditional insert for a
// customer wins and every later attempt returns AlreadySet without touching
// storage.
package referral

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xraph/affiliate/account"
	"github.com/xraph/affiliate/id"
)

const listPageSize = 500

// Resolver resolves sponsors through the account store and persists edges.
type Resolver struct {
	edges    Store
	accounts account.Store
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock used for edge timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver returns a resolver over edges and accounts.
func NewResolver(edges Store, accounts account.Store, opts ...Option) *Resolver {
	r := &Resolver{edges: edges, accounts: accounts, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attribute assigns actor.SponsorRef as the sponsor of actor.CustomerRef
// unless the customer already has one. Rejections are outcomes, not errors;
// only storage failures are returned as errors.
func (r *Resolver) Attribute(ctx context.Context, actor account.ActorContext) (*Attribution, error) {
	customer := strings.TrimSpace(actor.CustomerRef)
	sponsor := strings.TrimSpace(actor.SponsorRef)

	if customer == "" {
		return rejected(ReasonMissingCustomer), nil
	}

	existing, err := r.edges.GetEdge(ctx, customer)
	switch {
	case err == nil:
		return &Attribution{Status: AlreadySet, Edge: existing}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if sponsor == "" {
		return rejected(ReasonMissingSponsor), nil
	}
	if sponsor == customer {
		return rejected(ReasonSelfReferral), nil
	}

	sponsorUser, affiliateID, err := r.resolveSponsor(ctx, sponsor)
	if err != nil {
		if account.IsNotFound(err) {
			return rejected(ReasonUnknownSponsor), nil
		}
		return nil, err
	}
	if sponsorUser == customer {
		return rejected(ReasonSelfReferral), nil
	}

	edge := &Edge{
		ID:          id.NewReferralID(),
		CustomerRef: customer,
		AffiliateID: affiliateID,
		SponsorRef:  sponsorUser,
		Campaign:    strings.TrimSpace(actor.Campaign),
		CreatedAt:   r.now().UTC(),
	}
	inserted, err := r.edges.InsertEdgeIfAbsent(ctx, edge)
	if err != nil {
		return nil, err
	}
	if inserted {
		return &Attribution{Status: Assigned, Edge: edge}, nil
	}

	// Lost a race with a concurrent first sale.
	winner, err := r.edges.GetEdge(ctx, customer)
	if err != nil {
		return nil, err
	}
	return &Attribution{Status: AlreadySet, Edge: winner}, nil
}

// resolveSponsor accepts either a user ref or an affiliate id and returns
// both halves.
func (r *Resolver) resolveSponsor(ctx context.Context, ref string) (userRef, affiliateID string, err error) {
	affiliateID, err = r.accounts.FindAffiliateID(ctx, ref)
	if err == nil {
		return ref, affiliateID, nil
	}
	if !account.IsNotFound(err) {
		return "", "", err
	}
	userRef, err = r.accounts.FindUserByAffiliateID(ctx, ref)
	if err != nil {
		return "", "", err
	}
	return userRef, ref, nil
}

// SponsorOf returns the sponsor user ref of customer, if any.
func (r *Resolver) SponsorOf(ctx context.Context, customer string) (string, bool, error) {
	e, err := r.edges.GetEdge(ctx, customer)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.SponsorRef, true, nil
}

// CampaignOf returns the campaign the customer was referred under.
func (r *Resolver) CampaignOf(ctx context.Context, customer string) (string, error) {
	e, err := r.edges.GetEdge(ctx, customer)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return e.Campaign, nil
}

// ReferralsOf returns the customers referred by affiliate, given as a user
// ref or an affiliate id.
func (r *Resolver) ReferralsOf(ctx context.Context, affiliate string) ([]string, error) {
	affiliateID, err := r.accounts.FindAffiliateID(ctx, affiliate)
	switch {
	case account.IsNotFound(err):
		affiliateID = affiliate
	case err != nil:
		return nil, err
	}

	var out []string
	for offset := 0; ; offset += listPageSize {
		page, err := r.edges.ListEdges(ctx, affiliateID, ListOpts{Limit: listPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			out = append(out, e.CustomerRef)
		}
		if len(page) < listPageSize {
			return out, nil
		}
	}
}

func rejected(reason Reason) *Attribution {
	return &Attribution{Status: Rejected, Reason: reason}
}
