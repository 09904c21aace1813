// Package catalog holds the read-only product configuration: prices, access
// durations, provider product ids and the granted-by relation used for
// bundles and tiers.
//
// A Catalog is immutable after New and safe for concurrent reads.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownProduct is returned when a reference resolves to no product.
var ErrUnknownProduct = errors.New("affiliate: unknown product")

// Catalog is an immutable set of products indexed by slug and provider id.
type Catalog struct {
	products   []*Product
	bySlug     map[string]*Product
	byProvider map[string]*Product
	levels     []*Product
}

// New validates products and builds the catalog. All problems are reported
// together.
func New(products ...*Product) (*Catalog, error) {
	c := &Catalog{
		bySlug:     make(map[string]*Product, len(products)),
		byProvider: make(map[string]*Product),
	}

	var errs []error
	for _, in := range products {
		if in == nil {
			continue
		}
		p := in.clone()
		p.Slug = strings.TrimSpace(p.Slug)

		switch {
		case p.Slug == "":
			errs = append(errs, errors.New("product slug is required"))
			continue
		case c.bySlug[p.Slug] != nil:
			errs = append(errs, fmt.Errorf("product %q: duplicate slug", p.Slug))
			continue
		}
		if p.TrialDays < 0 || p.RebillDays < 0 {
			errs = append(errs, fmt.Errorf("product %q: durations must be non-negative", p.Slug))
		}
		if p.Recurring && p.RebillDays == 0 {
			errs = append(errs, fmt.Errorf("product %q: recurring products need rebill_days", p.Slug))
		}
		if !p.Recurring && p.TrialDays > 0 {
			errs = append(errs, fmt.Errorf("product %q: trial_days set on a one-time product", p.Slug))
		}

		c.bySlug[p.Slug] = p
		c.products = append(c.products, p)

		for _, pid := range p.ProviderIDs {
			if prev, ok := c.byProvider[pid]; ok {
				errs = append(errs, fmt.Errorf("product %q: provider id %q already used by %q", p.Slug, pid, prev.Slug))
				continue
			}
			c.byProvider[pid] = p
		}
	}

	for _, p := range c.products {
		for _, g := range p.GrantedBy {
			if c.bySlug[g] == nil {
				errs = append(errs, fmt.Errorf("product %q: granted_by references unknown product %q", p.Slug, g))
			}
		}
		if p.IsLevel() {
			c.levels = append(c.levels, p)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog: %w", errors.Join(errs...))
	}

	sort.SliceStable(c.levels, func(i, j int) bool { return c.levels[i].Rank > c.levels[j].Rank })
	return c, nil
}

// MustNew is New that panics on error.
func MustNew(products ...*Product) *Catalog {
	c, err := New(products...)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the product with slug, or nil.
func (c *Catalog) Get(slug string) *Product {
	return c.bySlug[slug]
}

// GetByProviderID returns the product a payment provider knows as id, or nil.
func (c *Catalog) GetByProviderID(id string) *Product {
	return c.byProvider[id]
}

// All returns every product in declaration order.
func (c *Catalog) All() []*Product {
	out := make([]*Product, len(c.products))
	copy(out, c.products)
	return out
}

// Resolve looks ref up as a slug first and then as a provider id.
func (c *Catalog) Resolve(ref string) (*Product, error) {
	ref = strings.TrimSpace(ref)
	if p := c.Get(ref); p != nil {
		return p, nil
	}
	if p := c.GetByProviderID(ref); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, ref)
}

// Levels returns the ranked products, highest priority first.
func (c *Catalog) Levels() []*Product {
	out := make([]*Product, len(c.levels))
	copy(out, c.levels)
	return out
}

// GrantedBy returns the slugs whose access satisfies slug. A product with an
// empty set is satisfied only by its own expiry.
func (c *Catalog) GrantedBy(slug string) []string {
	p := c.Get(slug)
	if p == nil {
		return nil
	}
	out := make([]string, len(p.GrantedBy))
	copy(out, p.GrantedBy)
	return out
}
