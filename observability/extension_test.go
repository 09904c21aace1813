package observability_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/affiliate"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/observability"
	"github.com/xraph/affiliate/store/memory"
)

func TestMetricsExtensionCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	accounts := memory.NewAccounts()
	accounts.AddUser("42", "1001")
	engine := affiliate.New(memory.New(), catalog.Default(), accounts, affiliate.WithPlugin(metrics))
	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	sale := []byte(`{"transaction_type":"SALE","transaction_id":"CB-1","product_id":"54",
		"customer_wpid":"7","sponsor_wpid":"1001","commission":"10.00"}`)
	refund := []byte(`{"transaction_type":"RFND","transaction_id":"CB-1","commission":"-10.00"}`)
	orphan := []byte(`{"transaction_type":"CGBK","transaction_id":"CB-9","commission":"-5.00"}`)

	for _, p := range [][]byte{sale, sale, refund, orphan, []byte(`nope`)} {
		_, err := engine.Handle(ctx, "clickbank", p)
		require.NoError(t, err)
	}

	counts := map[string]float64{
		"affiliate_event_received_total":                5,
		"affiliate_event_rejected_total":                1,
		"affiliate_event_recorded_total":                2,
		"affiliate_event_ignored_total":                 2,
		"affiliate_event_invalid_total":                 1,
		"affiliate_commission_recorded_total":           1,
		"affiliate_commission_reversed_total":           1,
		"affiliate_commission_duplicate_total":          1,
		"affiliate_commission_unmatched_reversal_total": 1,
		"affiliate_referral_attributed_total":           1,
		"affiliate_entitlement_granted_total":           1,
		"affiliate_entitlement_revoked_total":           1,
	}
	families, err := reg.Gather()
	require.NoError(t, err)
	got := make(map[string]float64)
	for _, mf := range families {
		if c := mf.GetMetric()[0].GetCounter(); c != nil {
			got[mf.GetName()] = c.GetValue()
		}
	}
	for name, want := range counts {
		assert.Equal(t, want, got[name], name)
	}
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("affiliate.test")
	b := f.Counter("affiliate.test")
	a.Inc()
	b.Add(2)

	// A second factory over the same registry adopts the registered collector.
	c := observability.NewPrometheusFactory(reg).Counter("affiliate.test")
	c.Inc()

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "affiliate_test_total"))
	counter, ok := c.(prometheus.Counter)
	require.True(t, ok)
	assert.Equal(t, float64(4), testutil.ToFloat64(counter))
}
