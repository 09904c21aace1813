// Package entitlement computes, updates and checks per-product access
// expiries. An expiry is a calendar date stored as an account attribute;
// a customer has access while today is strictly before it.
package entitlement

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/affiliate/account"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/types"
)

// Calculator applies the access policy to a Store using a catalog.
type Calculator struct {
	store    Store
	catalog  *catalog.Catalog
	now      func() time.Time
	partners []string
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithClock sets the clock that defines "today".
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// WithPartnerLevels overrides the slugs IsPartner checks.
func WithPartnerLevels(slugs ...string) Option {
	return func(c *Calculator) { c.partners = slugs }
}

// NewCalculator returns a calculator over store and cat.
func NewCalculator(store Store, cat *catalog.Catalog, opts ...Option) *Calculator {
	c := &Calculator{
		store:    store,
		catalog:  cat,
		now:      time.Now,
		partners: catalog.PartnerSlugs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the expiry an event of type t occurring on date grants for
// p, without reading or writing storage. Reversals yield types.Epoch.
func Policy(p *catalog.Product, t event.Type, occurred types.Date) types.Date {
	switch {
	case t.IsReversal():
		return types.Epoch
	case !p.Recurring:
		return types.FarFuture
	case t == event.Sale && p.HasTrial():
		return occurred.AddDays(p.TrialDays)
	default:
		return occurred.AddDays(p.RebillDays)
	}
}

// Grant extends customer's access to p for an event of type t. It returns
// the expiry now in force and whether storage changed. Grants only move an
// expiry forward; an earlier revocation is overridden because Epoch
// precedes every computed date. Reversal types revoke instead.
func (c *Calculator) Grant(ctx context.Context, customer string, p *catalog.Product, t event.Type, occurred types.Date) (types.Date, bool, error) {
	if t.IsReversal() {
		return types.Epoch, true, c.Revoke(ctx, customer, p)
	}

	next := Policy(p, t, occurred)
	current, err := c.expiry(ctx, customer, p)
	if err != nil {
		return types.Date{}, false, err
	}
	if !current.IsZero() && !current.Before(next) {
		return current, false, nil
	}
	if err := c.store.SetAttribute(ctx, customer, p.AccessKey(), next.String()); err != nil {
		return types.Date{}, false, fmt.Errorf("grant %s to %s: %w", p.Slug, customer, err)
	}
	return next, true, nil
}

// Revoke sets customer's expiry for p to Epoch regardless of its current
// value. The attribute is kept so history survives.
func (c *Calculator) Revoke(ctx context.Context, customer string, p *catalog.Product) error {
	if err := c.store.SetAttribute(ctx, customer, p.AccessKey(), types.Epoch.String()); err != nil {
		return fmt.Errorf("revoke %s from %s: %w", p.Slug, customer, err)
	}
	return nil
}

// Expiry returns the stored expiry of slug for customer. The zero Date
// means none is stored.
func (c *Calculator) Expiry(ctx context.Context, customer, slug string) (types.Date, error) {
	p, err := c.product(slug)
	if err != nil {
		return types.Date{}, err
	}
	return c.expiry(ctx, customer, p)
}

func (c *Calculator) expiry(ctx context.Context, customer string, p *catalog.Product) (types.Date, error) {
	raw, err := c.store.GetAttribute(ctx, customer, p.AccessKey())
	if account.IsNotFound(err) {
		return types.Date{}, nil
	}
	if err != nil {
		return types.Date{}, fmt.Errorf("read %s expiry for %s: %w", p.Slug, customer, err)
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		// Unreadable values are treated as absent and overwritten on the
		// next grant.
		return types.Date{}, nil
	}
	return d, nil
}

func (c *Calculator) today() types.Date { return types.DateOf(c.now()) }

// Check evaluates access to slug. When the product has a granted-by set,
// any member that grants access satisfies it; members are followed
// transitively and each product is visited at most once.
func (c *Calculator) Check(ctx context.Context, customer, slug string) (*Result, error) {
	if _, err := c.product(slug); err != nil {
		return nil, err
	}
	return c.check(ctx, customer, slug, c.today(), make(map[string]bool))
}

func (c *Calculator) check(ctx context.Context, customer, slug string, today types.Date, visited map[string]bool) (*Result, error) {
	res := &Result{Product: slug, Reason: ReasonNotGrant}
	if visited[slug] {
		return res, nil
	}
	visited[slug] = true

	p := c.catalog.Get(slug)
	if p == nil {
		return res, nil
	}
	if len(p.GrantedBy) == 0 {
		return c.direct(ctx, customer, p, today)
	}

	for _, g := range p.GrantedBy {
		var (
			sub *Result
			err error
		)
		if g == slug {
			sub, err = c.direct(ctx, customer, p, today)
		} else {
			sub, err = c.check(ctx, customer, g, today, visited)
		}
		if err != nil {
			return nil, err
		}
		if sub.Allowed {
			return &Result{Allowed: true, Product: slug, Via: sub.Via, Expiry: sub.Expiry}, nil
		}
	}
	return res, nil
}

func (c *Calculator) direct(ctx context.Context, customer string, p *catalog.Product, today types.Date) (*Result, error) {
	exp, err := c.expiry(ctx, customer, p)
	if err != nil {
		return nil, err
	}
	res := &Result{Product: p.Slug, Via: p.Slug, Expiry: exp}
	switch {
	case exp.IsZero():
		res.Reason = ReasonNoExpiry
	case today.Before(exp):
		res.Allowed = true
	default:
		res.Reason = ReasonExpired
	}
	return res, nil
}

// HasAccess reports whether customer currently has access to slug.
func (c *Calculator) HasAccess(ctx context.Context, customer, slug string) (bool, error) {
	res, err := c.Check(ctx, customer, slug)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// AccessList returns the slugs customer can access, in catalog order.
func (c *Calculator) AccessList(ctx context.Context, customer string) ([]string, error) {
	var out []string
	for _, p := range c.catalog.All() {
		ok, err := c.HasAccess(ctx, customer, p.Slug)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p.Slug)
		}
	}
	return out, nil
}

// CurrentLevel returns the highest-priority level customer holds, or
// FreeLevel.
func (c *Calculator) CurrentLevel(ctx context.Context, customer string) (Level, error) {
	for _, p := range c.catalog.Levels() {
		ok, err := c.HasAccess(ctx, customer, p.Slug)
		if err != nil {
			return Level{}, err
		}
		if ok {
			return levelOf(p), nil
		}
	}
	return FreeLevel, nil
}

// NextLevel returns the lowest-priority level customer does not hold. The
// second result is false when every level is held.
func (c *Calculator) NextLevel(ctx context.Context, customer string) (Level, bool, error) {
	levels := c.catalog.Levels()
	slices.Reverse(levels)
	for _, p := range levels {
		ok, err := c.HasAccess(ctx, customer, p.Slug)
		if err != nil {
			return Level{}, false, err
		}
		if !ok {
			return levelOf(p), true, nil
		}
	}
	return Level{}, false, nil
}

// IsPartner reports whether customer holds any partner level.
func (c *Calculator) IsPartner(ctx context.Context, customer string) (bool, error) {
	for _, slug := range c.partners {
		if c.catalog.Get(slug) == nil {
			continue
		}
		ok, err := c.HasAccess(ctx, customer, slug)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (c *Calculator) product(slug string) (*catalog.Product, error) {
	p := c.catalog.Get(slug)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownProduct, slug)
	}
	return p, nil
}

func levelOf(p *catalog.Product) Level {
	return Level{Slug: p.Slug, Name: p.Level, Rank: p.Rank}
}
