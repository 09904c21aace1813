package audithook

// Action constants for audit events.
const (
	// Intake actions
	ActionEventReceived  = "event.received"
	ActionEventRejected  = "event.rejected"
	ActionEventProcessed = "event.processed"

	// Ledger actions
	ActionCommissionRecorded = "commission.recorded"
	ActionDuplicateIgnored   = "commission.duplicate_ignored"
	ActionUnmatchedReversal  = "commission.unmatched_reversal"

	// Referral actions
	ActionReferralAttributed  = "referral.attributed"
	ActionAttributionRejected = "referral.rejected"

	// Entitlement actions
	ActionEntitlementGranted = "entitlement.granted"
	ActionEntitlementRevoked = "entitlement.revoked"
)

// Resource constants for audit events.
const (
	ResourceEvent       = "event"
	ResourceCommission  = "commission"
	ResourceReferral    = "referral"
	ResourceEntitlement = "entitlement"
)

// Category constants for audit events.
const (
	CategoryIntake      = "intake"
	CategoryLedger      = "ledger"
	CategoryAttribution = "attribution"
	CategoryAccess      = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)
