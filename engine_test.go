package affiliate_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/affiliate"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/store/memory"
	"github.com/xraph/affiliate/types"
)

var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine   *affiliate.Engine
	store    *memory.Store
	accounts *memory.Accounts
	hooks    *recorder
}

func newFixture(t *testing.T, opts ...affiliate.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		accounts: memory.NewAccounts(),
		hooks:    newRecorder(),
	}
	f.accounts.AddUser("S", "101")
	f.accounts.AddUser("S2", "102")
	f.accounts.AddUser("U", "")

	opts = append([]affiliate.Option{
		affiliate.WithClock(func() time.Time { return now }),
		affiliate.WithPlugin(f.hooks),
	}, opts...)
	f.engine = affiliate.New(f.store, catalog.Default(), f.accounts, opts...)
	require.NoError(t, f.engine.Start(context.Background()))
	return f
}

func (f *fixture) handle(t *testing.T, payload []byte) *affiliate.Outcome {
	t.Helper()
	out, err := f.engine.Handle(context.Background(), "clickbank", payload)
	require.NoError(t, err)
	return out
}

func (f *fixture) commissions(t *testing.T) []*commission.Commission {
	t.Helper()
	all, err := f.engine.Ledger().List(context.Background(), commission.ListOpts{})
	require.NoError(t, err)
	return all
}

type notification struct {
	Type       string `json:"transaction_type"`
	TxID       string `json:"transaction_id"`
	Product    string `json:"product_id,omitempty"`
	Customer   string `json:"customer_wpid,omitempty"`
	Sponsor    string `json:"sponsor_wpid,omitempty"`
	Commission string `json:"commission,omitempty"`
	Date       string `json:"date,omitempty"`
	Affiliate  string `json:"cb_affiliate,omitempty"`
}

func clickbank(t *testing.T, n notification) []byte {
	t.Helper()
	if n.Affiliate == "" {
		n.Affiliate = "topseller"
	}
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	return raw
}

// recorder counts plugin hook calls.
type recorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecorder() *recorder { return &recorder{counts: make(map[string]int)} }

func (r *recorder) inc(hook string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[hook]++
	return nil
}

func (r *recorder) count(hook string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[hook]
}

func (r *recorder) Name() string                     { return "recorder" }
func (r *recorder) OnInit(context.Context, any) error { return r.inc("init") }
func (r *recorder) OnShutdown(context.Context) error  { return r.inc("shutdown") }
func (r *recorder) OnEventRejected(context.Context, string, error) error {
	return r.inc("rejected")
}
func (r *recorder) OnCommissionRecorded(context.Context, *event.PaymentEvent, *commission.Commission) error {
	return r.inc("recorded")
}
func (r *recorder) OnDuplicateIgnored(context.Context, *event.PaymentEvent) error {
	return r.inc("duplicate")
}
func (r *recorder) OnUnmatchedReversal(context.Context, *event.PaymentEvent) error {
	return r.inc("unmatched")
}
func (r *recorder) OnReferralAttributed(context.Context, *referral.Edge) error {
	return r.inc("attributed")
}
func (r *recorder) OnAttributionRejected(context.Context, string, string, referral.Reason) error {
	return r.inc("attribution_rejected")
}
func (r *recorder) OnEntitlementGranted(context.Context, string, string, types.Date) error {
	return r.inc("granted")
}
func (r *recorder) OnEntitlementRevoked(context.Context, string, string) error {
	return r.inc("revoked")
}

func TestSaleRefundEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale := f.handle(t, clickbank(t, notification{
		Type: "SALE", TxID: "T1", Product: "54", Customer: "U", Sponsor: "S",
		Commission: "97", Date: "2024-01-05",
	}))
	assert.Equal(t, affiliate.StatusRecorded, sale.Status)
	assert.Equal(t, affiliate.StageEntitlementUpdated, sale.Stage)
	assert.Equal(t, catalog.YearlyPartner, sale.Product)
	assert.Equal(t, types.FarFuture, sale.Expiry)
	require.NotNil(t, sale.Attribution)
	assert.Equal(t, referral.Assigned, sale.Attribution.Status)

	c := sale.Ledger.Commission
	assert.Equal(t, int64(9700), c.Amount.Amount)
	assert.Equal(t, "U", c.ActorID)
	assert.Equal(t, "S", c.EarnerID)
	assert.Equal(t, "T1", c.PayoutTransactionID)

	ok, err := f.engine.Entitlements().HasAccess(ctx, "U", catalog.YearlyPartner)
	require.NoError(t, err)
	assert.True(t, ok)

	refund := f.handle(t, clickbank(t, notification{Type: "RFND", TxID: "T1", Date: "2024-01-08"}))
	assert.Equal(t, affiliate.StatusRecorded, refund.Status)
	assert.Equal(t, int64(-9700), refund.Ledger.Commission.Amount.Amount)
	assert.Equal(t, catalog.YearlyPartner, refund.Product, "product falls back to the original sale")
	assert.Equal(t, types.Epoch, refund.Expiry)

	ok, err = f.engine.Entitlements().HasAccess(ctx, "U", catalog.YearlyPartner)
	require.NoError(t, err)
	assert.False(t, ok)

	again := f.handle(t, clickbank(t, notification{Type: "RFND", TxID: "T1", Date: "2024-01-08"}))
	assert.Equal(t, affiliate.StatusIgnored, again.Status)
	assert.Equal(t, string(commission.DuplicateIgnored), again.Reason())
	assert.Len(t, f.commissions(t), 2)

	assert.Equal(t, 2, f.hooks.count("recorded"))
	assert.Equal(t, 1, f.hooks.count("granted"))
	assert.Equal(t, 1, f.hooks.count("revoked"))
	assert.Equal(t, 1, f.hooks.count("duplicate"))
}

func TestSaleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	payload := clickbank(t, notification{
		Type: "SALE", TxID: "T1", Product: "1000", Customer: "U", Sponsor: "S",
		Commission: "7.00", Date: "2024-01-05",
	})

	first := f.handle(t, payload)
	assert.Equal(t, affiliate.StatusRecorded, first.Status)
	assert.Equal(t, "2024-01-12", first.Expiry.String())
	assert.True(t, first.Changed)

	for range 3 {
		out := f.handle(t, payload)
		assert.Equal(t, affiliate.StatusIgnored, out.Status)
		assert.Equal(t, affiliate.StageLedgerIgnored, out.Stage)
		assert.False(t, out.Changed)
		assert.Equal(t, "2024-01-12", out.Expiry.String())
	}

	assert.Len(t, f.commissions(t), 1)
	assert.Equal(t, 1, f.hooks.count("granted"))
	assert.Equal(t, 3, f.hooks.count("duplicate"))
}

func TestRebillExtendsAccess(t *testing.T) {
	f := newFixture(t)

	f.handle(t, clickbank(t, notification{
		Type: "SALE", TxID: "T1", Product: "1000", Customer: "U", Sponsor: "S", Date: "2024-01-05",
	}))
	out := f.handle(t, clickbank(t, notification{
		Type: "BILL", TxID: "T2", Product: "1000", Customer: "U", Sponsor: "S",
		Commission: "47", Date: "2024-01-12",
	}))
	assert.Equal(t, affiliate.StatusRecorded, out.Status)
	assert.Nil(t, out.Attribution, "rebills do not attribute")
	assert.Equal(t, "2024-02-12", out.Expiry.String())
}

func TestUnmatchedReversalLeavesEntitlements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.accounts.SetAttribute(ctx, "U", "access_yearly_partner", "2025-01-01"))

	out := f.handle(t, clickbank(t, notification{
		Type: "CGBK", TxID: "UNKNOWN", Product: "54", Customer: "U", Date: "2024-01-08",
	}))
	assert.Equal(t, affiliate.StatusIgnored, out.Status)
	assert.Equal(t, affiliate.StageLedgerIgnored, out.Stage)
	assert.Equal(t, string(commission.UnmatchedReversal), out.Reason())
	assert.Empty(t, f.commissions(t))

	stored, err := f.accounts.GetAttribute(ctx, "U", "access_yearly_partner")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", stored)
	assert.Equal(t, 1, f.hooks.count("unmatched"))
	assert.Zero(t, f.hooks.count("revoked"))
}

func TestInvalidPayloads(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		provider string
		payload  []byte
		reason   string
	}{
		{"malformed json", "clickbank", []byte(`{"transaction_type":`), "invalid_payload"},
		{"missing transaction id", "clickbank", []byte(`{"transaction_type":"SALE"}`), "invalid_payload"},
		{"unsupported type", "clickbank", []byte(`{"transaction_type":"INSF","transaction_id":"T9"}`), "unsupported_type"},
		{"unknown provider", "paypal", []byte(`{}`), "invalid_payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.engine.Handle(context.Background(), tt.provider, tt.payload)
			require.NoError(t, err)
			assert.True(t, out.IsInvalid())
			assert.Equal(t, affiliate.StageReceived, out.Stage)
			assert.Equal(t, tt.reason, out.Reason())
			assert.True(t, affiliate.IsInvalid(out.Err))
		})
	}

	assert.Empty(t, f.commissions(t))
	assert.Equal(t, len(tests), f.hooks.count("rejected"))
}

func TestAttributionIsWriteOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handle(t, clickbank(t, notification{Type: "SALE", TxID: "T1", Product: "54", Customer: "U", Sponsor: "S"}))
	out := f.handle(t, clickbank(t, notification{Type: "SALE", TxID: "T2", Product: "54", Customer: "U", Sponsor: "S2"}))
	require.NotNil(t, out.Attribution)
	assert.Equal(t, referral.AlreadySet, out.Attribution.Status)

	sponsor, ok, err := f.engine.Resolver().SponsorOf(ctx, "U")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "S", sponsor)
	assert.Equal(t, 1, f.hooks.count("attributed"))
}

func TestSelfReferralDoesNotBlockLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.handle(t, clickbank(t, notification{Type: "SALE", TxID: "T1", Product: "54", Customer: "S", Sponsor: "S"}))
	assert.Equal(t, affiliate.StatusRecorded, out.Status)
	assert.Equal(t, referral.Rejected, out.Attribution.Status)
	assert.Equal(t, referral.ReasonSelfReferral, out.Attribution.Reason)

	_, ok, err := f.engine.Resolver().SponsorOf(ctx, "S")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.hooks.count("attribution_rejected"))
}

func TestBundleGrantsLowerTiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.handle(t, clickbank(t, notification{Type: "SALE", TxID: "T1", Product: catalog.Coaching, Customer: "U", Sponsor: "S"}))
	assert.Equal(t, types.FarFuture, out.Expiry)

	ok, err := f.engine.Entitlements().HasAccess(ctx, "U", catalog.MonthlyPartner)
	require.NoError(t, err)
	assert.True(t, ok)

	level, err := f.engine.Entitlements().CurrentLevel(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, catalog.Coaching, level.Slug)
}

func TestUnknownProductSkipsEntitlement(t *testing.T) {
	f := newFixture(t)

	out := f.handle(t, clickbank(t, notification{Type: "SALE", TxID: "T1", Product: "999", Customer: "U", Sponsor: "S"}))
	assert.Equal(t, affiliate.StatusRecorded, out.Status)
	assert.Equal(t, affiliate.StageEntitlementSkipped, out.Stage)
	assert.Empty(t, out.Product)
	assert.True(t, out.Expiry.IsZero())
}

func TestConcurrentDeliveriesRecordOnce(t *testing.T) {
	f := newFixture(t)
	payload := clickbank(t, notification{
		Type: "SALE", TxID: "T1", Product: "1000", Customer: "U", Sponsor: "S", Commission: "7",
	})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		recorded int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.Handle(context.Background(), "clickbank", payload)
			if !assert.NoError(t, err) {
				return
			}
			if out.Status == affiliate.StatusRecorded {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, recorded)
	assert.Len(t, f.commissions(t), 1)
	assert.Equal(t, 1, f.hooks.count("granted"))
}

var errUnavailable = errors.New("connection refused")

type brokenLedger struct{ *memory.Store }

func (brokenLedger) InsertCommission(context.Context, *commission.Commission) (bool, error) {
	return false, errUnavailable
}

func TestStorageFailureIsRetryable(t *testing.T) {
	accounts := memory.NewAccounts()
	e := affiliate.New(brokenLedger{memory.New()}, catalog.Default(), accounts)

	out, err := e.Handle(context.Background(), "clickbank",
		clickbank(t, notification{Type: "SALE", TxID: "T1", Product: "54", Customer: "U"}))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, affiliate.IsRetryable(err))
	assert.ErrorIs(t, err, errUnavailable)
}

// flakyAccounts fails the first SetAttribute.
type flakyAccounts struct {
	*memory.Accounts
	failed bool
}

func (a *flakyAccounts) SetAttribute(ctx context.Context, user, key, value string) error {
	if !a.failed {
		a.failed = true
		return errUnavailable
	}
	return a.Accounts.SetAttribute(ctx, user, key, value)
}

func TestRedeliveryRecoversLostGrant(t *testing.T) {
	accounts := &flakyAccounts{Accounts: memory.NewAccounts()}
	e := affiliate.New(memory.New(), catalog.Default(), accounts,
		affiliate.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	payload := clickbank(t, notification{Type: "SALE", TxID: "T1", Product: "54", Customer: "U"})

	_, err := e.Handle(ctx, "clickbank", payload)
	require.Error(t, err)
	assert.True(t, affiliate.IsRetryable(err))

	out, err := e.Handle(ctx, "clickbank", payload)
	require.NoError(t, err)
	assert.Equal(t, affiliate.StatusIgnored, out.Status)
	assert.True(t, out.Changed)
	assert.Equal(t, types.FarFuture, out.Expiry)

	ok, err := e.Entitlements().HasAccess(ctx, "U", catalog.YearlyPartner)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedeliveryRecoversLostRevoke(t *testing.T) {
	accounts := &flakyAccounts{Accounts: memory.NewAccounts(), failed: true}
	e := affiliate.New(memory.New(), catalog.Default(), accounts,
		affiliate.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := e.Handle(ctx, "clickbank",
		clickbank(t, notification{Type: "SALE", TxID: "T1", Product: "54", Customer: "U"}))
	require.NoError(t, err)

	accounts.failed = false
	refund := clickbank(t, notification{Type: "RFND", TxID: "T1"})
	_, err = e.Handle(ctx, "clickbank", refund)
	require.Error(t, err)
	assert.True(t, affiliate.IsRetryable(err))

	ok, err := e.Entitlements().HasAccess(ctx, "U", catalog.YearlyPartner)
	require.NoError(t, err)
	require.True(t, ok, "revoke write was lost")

	out, err := e.Handle(ctx, "clickbank", refund)
	require.NoError(t, err)
	assert.Equal(t, affiliate.StatusIgnored, out.Status)
	assert.Equal(t, string(commission.DuplicateIgnored), out.Reason())
	assert.True(t, out.Changed)
	assert.Equal(t, types.Epoch, out.Expiry)

	ok, err = e.Entitlements().HasAccess(ctx, "U", catalog.YearlyPartner)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := e.Handle(ctx, "clickbank", refund)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, types.Epoch, again.Expiry)
}

func TestRedeliveredSaleAfterRefundStaysRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := clickbank(t, notification{Type: "SALE", TxID: "T1", Product: "54", Customer: "U", Sponsor: "S"})

	f.handle(t, sale)
	f.handle(t, clickbank(t, notification{Type: "RFND", TxID: "T1"}))
	out := f.handle(t, sale)
	assert.Equal(t, affiliate.StatusIgnored, out.Status)
	assert.False(t, out.Changed)

	ok, err := f.engine.Entitlements().HasAccess(ctx, "U", catalog.YearlyPartner)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartStopRunsLifecycleHooks(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 1, f.hooks.count("init"))
	require.NoError(t, f.engine.Stop())
	assert.Equal(t, 1, f.hooks.count("shutdown"))
}
