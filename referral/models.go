package referral

import (
	"time"

	"github.com/xraph/affiliate/id"
)

// Edge maps a customer to the affiliate that referred them. Edges are
// written once and never updated.
type Edge struct {
	ID          id.ReferralID `json:"id"`
	CustomerRef string        `json:"customer_ref"`
	AffiliateID string        `json:"affiliate_id"`
	SponsorRef  string        `json:"sponsor_ref"`
	Campaign    string        `json:"campaign,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Status is the result of an attribution attempt.
type Status string

const (
	Assigned   Status = "assigned"
	AlreadySet Status = "already_set"
	Rejected   Status = "rejected"
)

// Reason explains a rejected attribution.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonMissingSponsor  Reason = "missing_sponsor"
	ReasonMissingCustomer Reason = "missing_customer"
	ReasonUnknownSponsor  Reason = "unknown_sponsor"
	ReasonSelfReferral    Reason = "self_referral"
)

// Attribution is the outcome of Resolver.Attribute. Edge is the edge now in
// force: the new one when Assigned, the existing one when AlreadySet.
type Attribution struct {
	Status Status `json:"status"`
	Reason Reason `json:"reason,omitempty"`
	Edge   *Edge  `json:"edge,omitempty"`
}
