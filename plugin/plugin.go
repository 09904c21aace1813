// Package plugin provides the hook system of the reconciliation engine.
// Plugins implement any subset of the hook interfaces below and are
// dispatched by type after registration.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *affiliate.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Intake hooks
// ──────────────────────────────────────────────────

// OnEventReceived is called with every raw payload before normalization.
type OnEventReceived interface {
	Plugin
	OnEventReceived(ctx context.Context, providerID string, payload []byte) error
}

// OnEventRejected is called when a payload fails normalization.
type OnEventRejected interface {
	Plugin
	OnEventRejected(ctx context.Context, providerID string, cause error) error
}

// OnEventProcessed is called once per handled event with its final status.
type OnEventProcessed interface {
	Plugin
	OnEventProcessed(ctx context.Context, ev *event.PaymentEvent, status string, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnCommissionRecorded is called after a ledger entry is written.
type OnCommissionRecorded interface {
	Plugin
	OnCommissionRecorded(ctx context.Context, ev *event.PaymentEvent, c *commission.Commission) error
}

// OnDuplicateIgnored is called when a redelivered event is dropped.
type OnDuplicateIgnored interface {
	Plugin
	OnDuplicateIgnored(ctx context.Context, ev *event.PaymentEvent) error
}

// OnUnmatchedReversal is called when a refund or chargeback matches no
// recorded sale.
type OnUnmatchedReversal interface {
	Plugin
	OnUnmatchedReversal(ctx context.Context, ev *event.PaymentEvent) error
}

// ──────────────────────────────────────────────────
// Referral hooks
// ──────────────────────────────────────────────────

// OnReferralAttributed is called when a new sponsor edge is written.
type OnReferralAttributed interface {
	Plugin
	OnReferralAttributed(ctx context.Context, edge *referral.Edge) error
}

// OnAttributionRejected is called when a sponsor cannot be assigned.
type OnAttributionRejected interface {
	Plugin
	OnAttributionRejected(ctx context.Context, customerRef, sponsorRef string, reason referral.Reason) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementGranted is called after access is granted or extended.
type OnEntitlementGranted interface {
	Plugin
	OnEntitlementGranted(ctx context.Context, customerRef, product string, expiry types.Date) error
}

// OnEntitlementRevoked is called after access is revoked.
type OnEntitlementRevoked interface {
	Plugin
	OnEntitlementRevoked(ctx context.Context, customerRef, product string) error
}
