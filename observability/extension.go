// Package observability provides a metrics plugin for the reconciliation
// engine that records event, ledger and entitlement counts through a
// MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/plugin"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnEventReceived       = (*MetricsExtension)(nil)
	_ plugin.OnEventRejected       = (*MetricsExtension)(nil)
	_ plugin.OnEventProcessed      = (*MetricsExtension)(nil)
	_ plugin.OnCommissionRecorded  = (*MetricsExtension)(nil)
	_ plugin.OnDuplicateIgnored    = (*MetricsExtension)(nil)
	_ plugin.OnUnmatchedReversal   = (*MetricsExtension)(nil)
	_ plugin.OnReferralAttributed  = (*MetricsExtension)(nil)
	_ plugin.OnAttributionRejected = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementGranted  = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementRevoked  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics. Names are dotted, e.g.
// "affiliate.event.received".
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine-wide reconciliation metrics.
// Register it as an engine plugin.
type MetricsExtension struct {
	factory MetricFactory

	// Intake metrics
	EventsReceived Counter
	EventsRejected Counter
	EventsRecorded Counter
	EventsIgnored  Counter
	EventsInvalid  Counter
	ProcessLatency Histogram
	PayloadBytes   Histogram

	// Ledger metrics
	CommissionsRecorded Counter
	CommissionsReversed Counter
	CommissionAmount    Histogram
	DuplicatesIgnored   Counter
	UnmatchedReversals  Counter

	// Referral metrics
	ReferralsAttributed  Counter
	AttributionsRejected Counter

	// Entitlement metrics
	EntitlementsGranted Counter
	EntitlementsRevoked Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory elsewhere.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		EventsReceived: factory.Counter("affiliate.event.received"),
		EventsRejected: factory.Counter("affiliate.event.rejected"),
		EventsRecorded: factory.Counter("affiliate.event.recorded"),
		EventsIgnored:  factory.Counter("affiliate.event.ignored"),
		EventsInvalid:  factory.Counter("affiliate.event.invalid"),
		ProcessLatency: factory.Histogram("affiliate.event.latency_ms"),
		PayloadBytes:   factory.Histogram("affiliate.event.payload_bytes"),

		CommissionsRecorded: factory.Counter("affiliate.commission.recorded"),
		CommissionsReversed: factory.Counter("affiliate.commission.reversed"),
		CommissionAmount:    factory.Histogram("affiliate.commission.amount_minor"),
		DuplicatesIgnored:   factory.Counter("affiliate.commission.duplicate"),
		UnmatchedReversals:  factory.Counter("affiliate.commission.unmatched_reversal"),

		ReferralsAttributed:  factory.Counter("affiliate.referral.attributed"),
		AttributionsRejected: factory.Counter("affiliate.referral.rejected"),

		EntitlementsGranted: factory.Counter("affiliate.entitlement.granted"),
		EntitlementsRevoked: factory.Counter("affiliate.entitlement.revoked"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Intake hooks
// ──────────────────────────────────────────────────

// OnEventReceived implements plugin.OnEventReceived.
func (m *MetricsExtension) OnEventReceived(_ context.Context, _ string, payload []byte) error {
	m.EventsReceived.Inc()
	m.PayloadBytes.Observe(float64(len(payload)))
	return nil
}

// OnEventRejected implements plugin.OnEventRejected.
func (m *MetricsExtension) OnEventRejected(_ context.Context, _ string, _ error) error {
	m.EventsRejected.Inc()
	return nil
}

// OnEventProcessed implements plugin.OnEventProcessed.
func (m *MetricsExtension) OnEventProcessed(_ context.Context, _ *event.PaymentEvent, status string, elapsed time.Duration) error {
	switch status {
	case "recorded":
		m.EventsRecorded.Inc()
	case "ignored":
		m.EventsIgnored.Inc()
	case "invalid":
		m.EventsInvalid.Inc()
	}
	m.ProcessLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnCommissionRecorded implements plugin.OnCommissionRecorded.
func (m *MetricsExtension) OnCommissionRecorded(_ context.Context, _ *event.PaymentEvent, c *commission.Commission) error {
	if c.IsReversal() {
		m.CommissionsReversed.Inc()
	} else {
		m.CommissionsRecorded.Inc()
	}
	m.CommissionAmount.Observe(float64(c.Amount.Amount))
	return nil
}

// OnDuplicateIgnored implements plugin.OnDuplicateIgnored.
func (m *MetricsExtension) OnDuplicateIgnored(_ context.Context, _ *event.PaymentEvent) error {
	m.DuplicatesIgnored.Inc()
	return nil
}

// OnUnmatchedReversal implements plugin.OnUnmatchedReversal.
func (m *MetricsExtension) OnUnmatchedReversal(_ context.Context, _ *event.PaymentEvent) error {
	m.UnmatchedReversals.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Referral hooks
// ──────────────────────────────────────────────────

// OnReferralAttributed implements plugin.OnReferralAttributed.
func (m *MetricsExtension) OnReferralAttributed(_ context.Context, _ *referral.Edge) error {
	m.ReferralsAttributed.Inc()
	return nil
}

// OnAttributionRejected implements plugin.OnAttributionRejected.
func (m *MetricsExtension) OnAttributionRejected(_ context.Context, _, _ string, _ referral.Reason) error {
	m.AttributionsRejected.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementGranted implements plugin.OnEntitlementGranted.
func (m *MetricsExtension) OnEntitlementGranted(_ context.Context, _, _ string, _ types.Date) error {
	m.EntitlementsGranted.Inc()
	return nil
}

// OnEntitlementRevoked implements plugin.OnEntitlementRevoked.
func (m *MetricsExtension) OnEntitlementRevoked(_ context.Context, _, _ string) error {
	m.EntitlementsRevoked.Inc()
	return nil
}
