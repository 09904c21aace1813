package catalog

import "github.com/xraph/affiliate/types"

// Product slugs of the default catalog.
const (
	Coaching        = "coaching"
	LifetimePartner = "lifetime_partner"
	YearlyPartner   = "yearly_partner"
	MonthlyPartner  = "monthly_partner"
)

// PartnerSlugs are the levels that make a customer a partner.
var PartnerSlugs = []string{MonthlyPartner, YearlyPartner, LifetimePartner}

// Default returns the built-in four-tier catalog. Each partner tier is
// granted by itself and every tier above it.
func Default() *Catalog {
	return MustNew(
		&Product{
			Slug:         Coaching,
			Name:         "Personal Coaching",
			Price:        types.USD(899700),
			GrantedBy:    []string{Coaching},
			Level:        "Coaching",
			Rank:         4,
			NoAccessPath: "/no-access-coaching",
		},
		&Product{
			Slug:         LifetimePartner,
			Name:         "Lifetime Partner",
			Price:        types.USD(199700),
			GrantedBy:    []string{LifetimePartner, Coaching},
			Level:        "Lifetime Partner",
			Rank:         3,
			NoAccessPath: "/no-access-lifetime-partner",
		},
		&Product{
			Slug:         YearlyPartner,
			Name:         "Yearly Partner",
			Price:        types.USD(49700),
			ProviderIDs:  []string{"54"},
			GrantedBy:    []string{YearlyPartner, LifetimePartner, Coaching},
			Level:        "Yearly Partner",
			Rank:         2,
			NoAccessPath: "/no-access-yearly-partner",
		},
		&Product{
			Slug:         MonthlyPartner,
			Name:         "Monthly Partner",
			Price:        types.USD(700),
			Recurring:    true,
			TrialDays:    7,
			RebillDays:   31,
			RebillPrice:  types.USD(4700),
			ProviderIDs:  []string{"1000"},
			GrantedBy:    []string{MonthlyPartner, YearlyPartner, LifetimePartner, Coaching},
			Level:        "Monthly Partner",
			Rank:         1,
			NoAccessPath: "/no-access-monthly-partner",
		},
	)
}
