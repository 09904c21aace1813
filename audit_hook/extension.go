// Package audithook bridges reconciliation engine events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/plugin"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnEventReceived       = (*Extension)(nil)
	_ plugin.OnEventRejected       = (*Extension)(nil)
	_ plugin.OnEventProcessed      = (*Extension)(nil)
	_ plugin.OnCommissionRecorded  = (*Extension)(nil)
	_ plugin.OnDuplicateIgnored    = (*Extension)(nil)
	_ plugin.OnUnmatchedReversal   = (*Extension)(nil)
	_ plugin.OnReferralAttributed  = (*Extension)(nil)
	_ plugin.OnAttributionRejected = (*Extension)(nil)
	_ plugin.OnEntitlementGranted  = (*Extension)(nil)
	_ plugin.OnEntitlementRevoked  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges engine events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   zerolog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Intake hooks
// ──────────────────────────────────────────────────

// OnEventReceived implements plugin.OnEventReceived.
func (e *Extension) OnEventReceived(ctx context.Context, providerID string, payload []byte) error {
	return e.record(ctx, ActionEventReceived, SeverityInfo, OutcomeSuccess,
		ResourceEvent, "", CategoryIntake, nil,
		"provider", providerID,
		"bytes", len(payload),
	)
}

// OnEventRejected implements plugin.OnEventRejected.
func (e *Extension) OnEventRejected(ctx context.Context, providerID string, cause error) error {
	return e.record(ctx, ActionEventRejected, SeverityWarning, OutcomeFailure,
		ResourceEvent, "", CategoryIntake, cause,
		"provider", providerID,
	)
}

// OnEventProcessed implements plugin.OnEventProcessed. ev is nil for
// rejected payloads.
func (e *Extension) OnEventProcessed(ctx context.Context, ev *event.PaymentEvent, status string, elapsed time.Duration) error {
	if ev == nil {
		return e.record(ctx, ActionEventProcessed, SeverityInfo, OutcomeFailure,
			ResourceEvent, "", CategoryIntake, nil,
			"status", status,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
	return e.record(ctx, ActionEventProcessed, SeverityInfo, OutcomeSuccess,
		ResourceEvent, ev.TransactionID(), CategoryIntake, nil,
		"provider", ev.Provider(),
		"type", string(ev.Type()),
		"status", status,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnCommissionRecorded implements plugin.OnCommissionRecorded.
func (e *Extension) OnCommissionRecorded(ctx context.Context, ev *event.PaymentEvent, c *commission.Commission) error {
	return e.record(ctx, ActionCommissionRecorded, SeverityInfo, OutcomeSuccess,
		ResourceCommission, c.ID.String(), CategoryLedger, nil,
		"transaction_id", c.TransactionID,
		"type", string(ev.Type()),
		"amount", c.Amount.Amount,
		"currency", c.Amount.Currency,
		"earner_id", c.EarnerID,
		"actor_id", c.ActorID,
	)
}

// OnDuplicateIgnored implements plugin.OnDuplicateIgnored.
func (e *Extension) OnDuplicateIgnored(ctx context.Context, ev *event.PaymentEvent) error {
	return e.record(ctx, ActionDuplicateIgnored, SeverityInfo, OutcomeSkipped,
		ResourceEvent, ev.TransactionID(), CategoryLedger, nil,
		"provider", ev.Provider(),
		"type", string(ev.Type()),
	)
}

// OnUnmatchedReversal implements plugin.OnUnmatchedReversal.
func (e *Extension) OnUnmatchedReversal(ctx context.Context, ev *event.PaymentEvent) error {
	return e.record(ctx, ActionUnmatchedReversal, SeverityWarning, OutcomeFailure,
		ResourceEvent, ev.TransactionID(), CategoryLedger, nil,
		"provider", ev.Provider(),
		"type", string(ev.Type()),
		"amount", ev.Amount().Amount,
	)
}

// ──────────────────────────────────────────────────
// Referral hooks
// ──────────────────────────────────────────────────

// OnReferralAttributed implements plugin.OnReferralAttributed.
func (e *Extension) OnReferralAttributed(ctx context.Context, edge *referral.Edge) error {
	return e.record(ctx, ActionReferralAttributed, SeverityInfo, OutcomeSuccess,
		ResourceReferral, edge.ID.String(), CategoryAttribution, nil,
		"customer_ref", edge.CustomerRef,
		"affiliate_id", edge.AffiliateID,
		"campaign", edge.Campaign,
	)
}

// OnAttributionRejected implements plugin.OnAttributionRejected.
func (e *Extension) OnAttributionRejected(ctx context.Context, customerRef, sponsorRef string, reason referral.Reason) error {
	return e.record(ctx, ActionAttributionRejected, SeverityWarning, OutcomeFailure,
		ResourceReferral, customerRef, CategoryAttribution, fmt.Errorf("%s", reason),
		"customer_ref", customerRef,
		"sponsor_ref", sponsorRef,
	)
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementGranted implements plugin.OnEntitlementGranted.
func (e *Extension) OnEntitlementGranted(ctx context.Context, customerRef, product string, expiry types.Date) error {
	return e.record(ctx, ActionEntitlementGranted, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, customerRef, CategoryAccess, nil,
		"product", product,
		"expiry", expiry.String(),
	)
}

// OnEntitlementRevoked implements plugin.OnEntitlementRevoked.
func (e *Extension) OnEntitlementRevoked(ctx context.Context, customerRef, product string) error {
	return e.record(ctx, ActionEntitlementRevoked, SeverityWarning, OutcomeSuccess,
		ResourceEntitlement, customerRef, CategoryAccess, nil,
		"product", product,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn().
			Err(recErr).
			Str("action", action).
			Str("resource_id", resourceID).
			Msg("audit_hook: failed to record audit event")
	}
	return nil
}
