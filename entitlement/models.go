package entitlement

import "github.com/xraph/affiliate/types"

// Result is the outcome of an access check. Via names the product whose
// expiry satisfied the check, which differs from Product when access comes
// through the granted-by relation.
type Result struct {
	Allowed bool       `json:"allowed"`
	Product string     `json:"product"`
	Via     string     `json:"via,omitempty"`
	Expiry  types.Date `json:"expiry"`
	Reason  string     `json:"reason,omitempty"`
}

// Level is a ranked membership level.
type Level struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

// FreeLevel is held by every customer without a paid level.
var FreeLevel = Level{Slug: "free", Name: "Free Member"}

// Check failure reasons.
const (
	ReasonNoExpiry = "no_expiry"
	ReasonExpired  = "expired"
	ReasonNotGrant = "not_granted"
)
