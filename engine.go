package affiliate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xraph/affiliate/account"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/entitlement"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/plugin"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/store"
	"github.com/xraph/affiliate/txlock"
	"github.com/xraph/affiliate/types"
)

// Engine is the reconciliation engine. It turns provider payloads into
// ledger entries, sponsor edges and entitlement updates.
type Engine struct {
	store    store.Store
	catalog  *catalog.Catalog
	accounts account.Store

	normalizers  *event.Registry
	ledger       *commission.Ledger
	resolver     *referral.Resolver
	entitlements *entitlement.Calculator

	locker  txlock.Locker
	plugins *plugin.Registry
	logger  zerolog.Logger
	now     func() time.Time

	extra    []event.Normalizer
	currency string
}

// New creates an Engine over s for ledger and referral data, cat for
// products and accounts for sponsor lookups and entitlement attributes.
func New(s store.Store, cat *catalog.Catalog, accounts account.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		catalog:  cat,
		accounts: accounts,
		locker:   txlock.NewKeyedMutex(),
		plugins:  plugin.NewRegistry(),
		logger:   zerolog.Nop(),
		now:      time.Now,
		currency: "usd",
	}

	for _, opt := range opts {
		opt(e)
	}

	e.normalizers = event.NewRegistry(
		event.NewClickBank(event.WithClickBankClock(e.now)),
		event.NewStripe(),
	)
	for _, n := range e.extra {
		e.normalizers.Register(n)
	}
	e.ledger = commission.NewLedger(s,
		commission.WithClock(e.now),
		commission.WithCurrency(e.currency),
	)
	e.resolver = referral.NewResolver(s, accounts, referral.WithClock(e.now))
	e.entitlements = entitlement.NewCalculator(accounts, cat, entitlement.WithClock(e.now))

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithNormalizer adds or replaces the normalizer for n.Provider().
func WithNormalizer(n event.Normalizer) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, n)
	}
}

// WithLocker sets the per-transaction lock. The default is in-process;
// deployments running several engines against one store need a shared
// locker such as store/redis.Locker.
func WithLocker(l txlock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithClock sets the clock used for "today" and default timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCurrency sets the currency earnings summaries are reported in.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = currency
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info().
		Strs("providers", e.normalizers.Providers()).
		Int("products", len(e.catalog.All())).
		Int("plugins", e.plugins.Count()).
		Msg("affiliate engine started")

	return nil
}

// Stop notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Store returns the ledger and referral store.
func (e *Engine) Store() store.Store { return e.store }

// Catalog returns the product catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Normalizers returns the provider normalizer registry.
func (e *Engine) Normalizers() *event.Registry { return e.normalizers }

// Ledger returns the commission ledger.
func (e *Engine) Ledger() *commission.Ledger { return e.ledger }

// Resolver returns the referral resolver.
func (e *Engine) Resolver() *referral.Resolver { return e.resolver }

// Entitlements returns the entitlement calculator.
func (e *Engine) Entitlements() *entitlement.Calculator { return e.entitlements }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Event handling
// ──────────────────────────────────────────────────

// Status is the final disposition of a handled event.
type Status string

const (
	// StatusRecorded means a ledger entry was written.
	StatusRecorded Status = "recorded"
	// StatusIgnored means the event was a duplicate or an unmatched reversal.
	StatusIgnored Status = "ignored"
	// StatusInvalid means the payload could not be normalized.
	StatusInvalid Status = "invalid"
)

// Stage is the last processing state an event reached.
type Stage string

const (
	StageReceived           Stage = "received"
	StageLedgerIgnored      Stage = "ledger_ignored"
	StageEntitlementUpdated Stage = "entitlement_updated"
	StageEntitlementSkipped Stage = "entitlement_skipped"
)

// Outcome describes what Handle did with one payload.
type Outcome struct {
	// ID is a receipt for this delivery. Redeliveries get new receipts.
	ID          id.ReceiptID          `json:"id"`
	Status      Status                `json:"status"`
	Stage       Stage                 `json:"stage"`
	Provider    string                `json:"provider"`
	Event       *event.PaymentEvent   `json:"event,omitempty"`
	Ledger      *commission.Result    `json:"ledger,omitempty"`
	Attribution *referral.Attribution `json:"attribution,omitempty"`

	// Product is the catalog slug whose entitlement was evaluated, if any.
	Product string     `json:"product,omitempty"`
	Expiry  types.Date `json:"expiry,omitzero"`
	Changed bool       `json:"entitlement_changed,omitempty"`

	// Err is the normalization failure for StatusInvalid.
	Err error `json:"-"`
}

// Handle reconciles one raw provider payload. Invalid payloads, duplicates
// and unmatched reversals are reported in the Outcome; only storage and
// lock failures are returned as errors, and those are retryable.
func (e *Engine) Handle(ctx context.Context, providerID string, raw []byte) (*Outcome, error) {
	start := time.Now()
	e.plugins.EmitEventReceived(ctx, providerID, raw)

	ev, err := e.normalizers.Normalize(providerID, raw)
	if err != nil {
		e.logger.Warn().Err(err).Str("provider", providerID).Msg("payload rejected")
		e.plugins.EmitEventRejected(ctx, providerID, err)
		e.plugins.EmitEventProcessed(ctx, nil, string(StatusInvalid), time.Since(start))
		return &Outcome{ID: id.NewReceiptID(), Status: StatusInvalid, Stage: StageReceived, Provider: providerID, Err: err}, nil
	}

	out, err := e.Apply(ctx, ev)
	if err != nil {
		return nil, err
	}
	e.plugins.EmitEventProcessed(ctx, ev, string(out.Status), time.Since(start))
	return out, nil
}

// Apply reconciles an already normalized event. Events sharing a
// transaction id are serialized through the engine's locker.
func (e *Engine) Apply(ctx context.Context, ev *event.PaymentEvent) (*Outcome, error) {
	unlock, err := e.locker.Lock(ctx, ev.TransactionID())
	if err != nil {
		return nil, transient("lock %s: %w", ev.TransactionID(), err)
	}
	defer unlock()

	out := &Outcome{ID: id.NewReceiptID(), Provider: ev.Provider(), Event: ev}
	log := e.logger.With().
		Str("provider", ev.Provider()).
		Str("transaction_id", ev.TransactionID()).
		Str("type", string(ev.Type())).
		Logger()

	if ev.Type() == event.Sale {
		if err := e.attribute(ctx, ev, out, log); err != nil {
			return nil, err
		}
	}

	res, err := e.ledger.Apply(ctx, ev)
	if err != nil {
		return nil, transient("apply %s: %w", ev.TransactionID(), err)
	}
	out.Ledger = res

	switch res.Kind {
	case commission.UnmatchedReversal:
		out.Status, out.Stage = StatusIgnored, StageLedgerIgnored
		log.Warn().Msg("reversal matches no recorded sale")
		e.plugins.EmitUnmatchedReversal(ctx, ev)
		return out, nil

	case commission.DuplicateIgnored:
		out.Status, out.Stage = StatusIgnored, StageLedgerIgnored
		log.Debug().Str("commission_id", res.Commission.ID.String()).Msg("duplicate event ignored")
		e.plugins.EmitDuplicateIgnored(ctx, ev)
		// A redelivery re-applies its entitlement change so a write lost
		// after the ledger write is recovered. Grants never shorten access,
		// refunded sales are skipped and stored revokes are not rewritten.
		if ev.Type().IsReversal() || !res.Commission.IsRefunded() {
			if err := e.entitle(ctx, ev, res, out, log); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	out.Status, out.Stage = StatusRecorded, StageEntitlementSkipped
	log.Info().
		Str("commission_id", res.Commission.ID.String()).
		Str("amount", res.Commission.Amount.String()).
		Str("earner_id", res.Commission.EarnerID).
		Msg("commission recorded")
	e.plugins.EmitCommissionRecorded(ctx, ev, res.Commission)

	if err := e.entitle(ctx, ev, res, out, log); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) attribute(ctx context.Context, ev *event.PaymentEvent, out *Outcome, log zerolog.Logger) error {
	actor := account.ActorContext{
		CustomerRef: ev.CustomerRef(),
		SponsorRef:  ev.SponsorRef(),
		Campaign:    ev.Campaign(),
	}
	attr, err := e.resolver.Attribute(ctx, actor)
	if err != nil {
		return transient("attribute %s: %w", actor.CustomerRef, err)
	}
	out.Attribution = attr

	switch attr.Status {
	case referral.Assigned:
		log.Info().
			Str("customer_ref", actor.CustomerRef).
			Str("sponsor_ref", attr.Edge.SponsorRef).
			Msg("referral attributed")
		e.plugins.EmitReferralAttributed(ctx, attr.Edge)
	case referral.Rejected:
		lvl := log.Warn()
		if attr.Reason == referral.ReasonMissingSponsor {
			lvl = log.Debug()
		}
		lvl.
			Str("customer_ref", actor.CustomerRef).
			Str("sponsor_ref", actor.SponsorRef).
			Str("reason", string(attr.Reason)).
			Msg("referral not attributed")
		e.plugins.EmitAttributionRejected(ctx, actor.CustomerRef, actor.SponsorRef, attr.Reason)
	}
	return nil
}

// entitle grants or revokes access for the product an event paid for.
// Reversals fall back to the refs of the entry they matched.
func (e *Engine) entitle(ctx context.Context, ev *event.PaymentEvent, res *commission.Result, out *Outcome, log zerolog.Logger) error {
	ref, customer := ev.ProductRef(), ev.CustomerRef()
	if c := res.Commission; c != nil {
		if ref == "" {
			ref = c.ProductRef
		}
		if customer == "" {
			customer = c.ActorID
		}
	}
	if customer == "" {
		log.Debug().Msg("no customer to entitle")
		return nil
	}
	p, err := e.catalog.Resolve(ref)
	if err != nil {
		log.Warn().Str("product_ref", ref).Msg("event product not in catalog")
		return nil
	}
	out.Product = p.Slug
	if out.Status == StatusRecorded {
		out.Stage = StageEntitlementUpdated
	}

	if ev.Type().IsReversal() {
		if out.Status == StatusIgnored {
			cur, err := e.entitlements.Expiry(ctx, customer, p.Slug)
			if err != nil {
				return transient("%w", err)
			}
			if cur == types.Epoch {
				out.Expiry = types.Epoch
				return nil
			}
		}
		if err := e.entitlements.Revoke(ctx, customer, p); err != nil {
			return transient("%w", err)
		}
		out.Expiry, out.Changed = types.Epoch, true
		log.Info().Str("customer_ref", customer).Str("product", p.Slug).Msg("entitlement revoked")
		e.plugins.EmitEntitlementRevoked(ctx, customer, p.Slug)
		return nil
	}

	exp, changed, err := e.entitlements.Grant(ctx, customer, p, ev.Type(), ev.OccurredOn())
	if err != nil {
		return transient("%w", err)
	}
	out.Expiry, out.Changed = exp, changed
	if changed {
		log.Info().
			Str("customer_ref", customer).
			Str("product", p.Slug).
			Str("expiry", exp.String()).
			Msg("entitlement granted")
		e.plugins.EmitEntitlementGranted(ctx, customer, p.Slug, exp)
	}
	return nil
}

func transient(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// IsInvalid reports whether the payload was rejected. Err holds the cause.
func (o *Outcome) IsInvalid() bool { return o != nil && o.Status == StatusInvalid }

// Reason returns a short machine-readable reason for the outcome.
func (o *Outcome) Reason() string {
	switch {
	case o == nil:
		return ""
	case o.Status == StatusInvalid && errors.Is(o.Err, event.ErrUnsupportedType):
		return "unsupported_type"
	case o.Status == StatusInvalid:
		return "invalid_payload"
	case o.Ledger != nil:
		return string(o.Ledger.Kind)
	default:
		return ""
	}
}
