package catalog

import (
	"slices"

	"github.com/xraph/affiliate/types"
)

// AccessKeyPrefix prefixes the account attribute that stores a product's
// access expiry.
const AccessKeyPrefix = "access_"

// Product is a catalog entry. A product with a Level name also takes part in
// level ranking; there is no separate level type.
type Product struct {
	Slug         string      `json:"slug"`
	Name         string      `json:"name"`
	Price        types.Money `json:"price"`
	Recurring    bool        `json:"recurring"`
	TrialDays    int         `json:"trial_days,omitempty"`
	RebillDays   int         `json:"rebill_days,omitempty"`
	RebillPrice  types.Money `json:"rebill_price"`
	ProviderIDs  []string    `json:"provider_ids,omitempty"`
	GrantedBy    []string    `json:"granted_by,omitempty"`
	Level        string      `json:"level,omitempty"`
	Rank         int         `json:"rank,omitempty"`
	NoAccessPath string      `json:"no_access_path,omitempty"`
}

// AccessKey is the attribute key holding this product's expiry date.
func (p *Product) AccessKey() string { return AccessKeyPrefix + p.Slug }

// HasTrial reports whether a first sale opens a trial window.
func (p *Product) HasTrial() bool { return p.Recurring && p.TrialDays > 0 }

// IsLevel reports whether the product is ranked as a membership level.
func (p *Product) IsLevel() bool { return p.Level != "" }

// IsGrantedBy reports whether access to slug satisfies this product.
func (p *Product) IsGrantedBy(slug string) bool { return slices.Contains(p.GrantedBy, slug) }

func (p *Product) clone() *Product {
	cp := *p
	cp.ProviderIDs = slices.Clone(p.ProviderIDs)
	cp.GrantedBy = slices.Clone(p.GrantedBy)
	return &cp
}
