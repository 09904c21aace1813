package affiliate_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/xraph/affiliate"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/store/memory"
	"github.com/xraph/affiliate/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from the package documentation
	t.Run("QuickStartExample", func(t *testing.T) {
		accounts := memory.NewAccounts()
		accounts.AddUser("42", "1001")

		engine := affiliate.New(memory.New(), catalog.Default(), accounts,
			affiliate.WithLogger(zerolog.New(os.Stderr).Level(zerolog.WarnLevel)),
		)

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		payload := []byte(`{
			"transaction_type": "SALE",
			"transaction_id": "CB-1",
			"product_id": "54",
			"customer_wpid": "7",
			"sponsor_wpid": "1001",
			"commission": "248.50"
		}`)

		out, err := engine.Handle(ctx, "clickbank", payload)
		if err != nil {
			t.Fatal(err)
		}
		if out.Status != affiliate.StatusRecorded {
			t.Fatalf("status: got %s, want recorded", out.Status)
		}
		log.Printf("access until %s\n", out.Expiry)

		ok, err := engine.Entitlements().HasAccess(ctx, "7", catalog.YearlyPartner)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected yearly partner access")
		}

		sum, err := engine.Ledger().Earnings(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("affiliate 1001 earned %s\n", sum.Net)

		entries, err := engine.Ledger().List(ctx, commission.ListOpts{EarnerID: "1001"})
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Fatalf("entries: got %d, want 1", len(entries))
		}
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)   // $49.00
		_ = types.Zero("usd") // $0.00

		m, err := types.ParseMoney("47.00", "usd")
		if err != nil {
			t.Fatal(err)
		}

		// Arithmetic
		refund := m.Negate()
		if !m.Add(refund).IsZero() {
			t.Fatal("sale plus refund should net to zero")
		}

		// Formatting
		if got := m.FormatMajor(); got != "47.00" {
			t.Errorf("FormatMajor: got %q, want %q", got, "47.00")
		}
		_ = m.String() // "$47.00"
	})

	// Test Date sentinel examples
	t.Run("DateExamples", func(t *testing.T) {
		d, err := affiliate.ParseDate("2024-01-01")
		if err != nil {
			t.Fatal(err)
		}
		if got := d.AddDays(7).String(); got != "2024-01-08" {
			t.Errorf("AddDays: got %s, want 2024-01-08", got)
		}
		if !affiliate.Epoch.Before(d) || !d.Before(affiliate.FarFuture) {
			t.Error("sentinels should bracket every real date")
		}
	})
}
