package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/types"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and dispatches hooks to the
// plugins that implement them. Interface lists are cached at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  zerolog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onEventReceived       []OnEventReceived
	onEventRejected       []OnEventRejected
	onEventProcessed      []OnEventProcessed
	onCommissionRecorded  []OnCommissionRecorded
	onDuplicateIgnored    []OnDuplicateIgnored
	onUnmatchedReversal   []OnUnmatchedReversal
	onReferralAttributed  []OnReferralAttributed
	onAttributionRejected []OnAttributionRejected
	onEntitlementGranted  []OnEntitlementGranted
	onEntitlementRevoked  []OnEntitlementRevoked
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: zerolog.Nop(), timeout: DefaultTimeout}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger zerolog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	cache := func(name string, ok bool) {
		if ok {
			hooks = append(hooks, name)
		}
	}
	cache("OnInit", appendIf(&r.onInit, p))
	cache("OnShutdown", appendIf(&r.onShutdown, p))
	cache("OnEventReceived", appendIf(&r.onEventReceived, p))
	cache("OnEventRejected", appendIf(&r.onEventRejected, p))
	cache("OnEventProcessed", appendIf(&r.onEventProcessed, p))
	cache("OnCommissionRecorded", appendIf(&r.onCommissionRecorded, p))
	cache("OnDuplicateIgnored", appendIf(&r.onDuplicateIgnored, p))
	cache("OnUnmatchedReversal", appendIf(&r.onUnmatchedReversal, p))
	cache("OnReferralAttributed", appendIf(&r.onReferralAttributed, p))
	cache("OnAttributionRejected", appendIf(&r.onAttributionRejected, p))
	cache("OnEntitlementGranted", appendIf(&r.onEntitlementGranted, p))
	cache("OnEntitlementRevoked", appendIf(&r.onEntitlementRevoked, p))

	r.logger.Info().Str("name", p.Name()).Strs("hooks", hooks).Msg("plugin registered")
	return nil
}

func appendIf[T Plugin](list *[]T, p Plugin) bool {
	v, ok := p.(T)
	if ok {
		*list = append(*list, v)
	}
	return ok
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for each plugin in list. Failures are logged and never
// interrupt event processing.
func emit[T Plugin](r *Registry, ctx context.Context, hook string, list *[]T, fn func(T) error) {
	r.mu.RLock()
	plugins := make([]T, len(*list))
	copy(plugins, *list)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn().Err(err).Str("plugin", p.Name()).Str("hook", hook).Msg("plugin hook failed")
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(r, ctx, "OnInit", &r.onInit, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", &r.onShutdown, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitEventReceived calls OnEventReceived for all plugins that implement it.
func (r *Registry) EmitEventReceived(ctx context.Context, providerID string, payload []byte) {
	emit(r, ctx, "OnEventReceived", &r.onEventReceived, func(p OnEventReceived) error {
		return p.OnEventReceived(ctx, providerID, payload)
	})
}

// EmitEventRejected calls OnEventRejected for all plugins that implement it.
func (r *Registry) EmitEventRejected(ctx context.Context, providerID string, cause error) {
	emit(r, ctx, "OnEventRejected", &r.onEventRejected, func(p OnEventRejected) error {
		return p.OnEventRejected(ctx, providerID, cause)
	})
}

// EmitEventProcessed calls OnEventProcessed for all plugins that implement it.
func (r *Registry) EmitEventProcessed(ctx context.Context, ev *event.PaymentEvent, status string, elapsed time.Duration) {
	emit(r, ctx, "OnEventProcessed", &r.onEventProcessed, func(p OnEventProcessed) error {
		return p.OnEventProcessed(ctx, ev, status, elapsed)
	})
}

// EmitCommissionRecorded calls OnCommissionRecorded for all plugins that implement it.
func (r *Registry) EmitCommissionRecorded(ctx context.Context, ev *event.PaymentEvent, c *commission.Commission) {
	emit(r, ctx, "OnCommissionRecorded", &r.onCommissionRecorded, func(p OnCommissionRecorded) error {
		return p.OnCommissionRecorded(ctx, ev, c)
	})
}

// EmitDuplicateIgnored calls OnDuplicateIgnored for all plugins that implement it.
func (r *Registry) EmitDuplicateIgnored(ctx context.Context, ev *event.PaymentEvent) {
	emit(r, ctx, "OnDuplicateIgnored", &r.onDuplicateIgnored, func(p OnDuplicateIgnored) error {
		return p.OnDuplicateIgnored(ctx, ev)
	})
}

// EmitUnmatchedReversal calls OnUnmatchedReversal for all plugins that implement it.
func (r *Registry) EmitUnmatchedReversal(ctx context.Context, ev *event.PaymentEvent) {
	emit(r, ctx, "OnUnmatchedReversal", &r.onUnmatchedReversal, func(p OnUnmatchedReversal) error {
		return p.OnUnmatchedReversal(ctx, ev)
	})
}

// EmitReferralAttributed calls OnReferralAttributed for all plugins that implement it.
func (r *Registry) EmitReferralAttributed(ctx context.Context, edge *referral.Edge) {
	emit(r, ctx, "OnReferralAttributed", &r.onReferralAttributed, func(p OnReferralAttributed) error {
		return p.OnReferralAttributed(ctx, edge)
	})
}

// EmitAttributionRejected calls OnAttributionRejected for all plugins that implement it.
func (r *Registry) EmitAttributionRejected(ctx context.Context, customerRef, sponsorRef string, reason referral.Reason) {
	emit(r, ctx, "OnAttributionRejected", &r.onAttributionRejected, func(p OnAttributionRejected) error {
		return p.OnAttributionRejected(ctx, customerRef, sponsorRef, reason)
	})
}

// EmitEntitlementGranted calls OnEntitlementGranted for all plugins that implement it.
func (r *Registry) EmitEntitlementGranted(ctx context.Context, customerRef, product string, expiry types.Date) {
	emit(r, ctx, "OnEntitlementGranted", &r.onEntitlementGranted, func(p OnEntitlementGranted) error {
		return p.OnEntitlementGranted(ctx, customerRef, product, expiry)
	})
}

// EmitEntitlementRevoked calls OnEntitlementRevoked for all plugins that implement it.
func (r *Registry) EmitEntitlementRevoked(ctx context.Context, customerRef, product string) {
	emit(r, ctx, "OnEntitlementRevoked", &r.onEntitlementRevoked, func(p OnEntitlementRevoked) error {
		return p.OnEntitlementRevoked(ctx, customerRef, product)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the reconciliation pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
