// Package affiliate provides an affiliate commission ledger and entitlement
// reconciliation engine for Go applications.
//
// Affiliate is designed as a library, not a service. Payment providers
// deliver sale, rebill, refund and chargeback events at least once and in
// any order; the Engine applies each of them exactly once:
//
//   - Provider payloads (ClickBank, Stripe) are normalized into an
//     immutable PaymentEvent
//   - Sales attribute the customer to a sponsor, once and forever
//   - Every event writes at most one ledger entry per transaction and
//     polarity; refunds and chargebacks are matched to the original sale
//   - Product access is granted, extended or revoked as an expiry date
//
// # Quick Start
//
// Create an engine with your preferred store and account backend:
//
//	import (
//	    "github.com/xraph/affiliate"
//	    "github.com/xraph/affiliate/catalog"
//	    "github.com/xraph/affiliate/store/memory"
//	)
//
//	accounts := memory.NewAccounts()
//	accounts.AddUser("42", "1001")
//
//	engine := affiliate.New(memory.New(), catalog.Default(), accounts)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
//	out, err := engine.Handle(ctx, "clickbank", payload)
//	if err != nil {
//	    // storage unavailable; redeliver later
//	}
//	fmt.Println(out.Status, out.Expiry)
//
// # Core Concepts
//
// The ledger holds signed Commission entries keyed by provider transaction
// id. A reversal whose sale was never recorded is ignored and logged; it
// never fabricates an entry.
//
// Referral edges map a customer to the affiliate who sponsored them. The
// first successful write wins; self-referrals and unknown sponsors are
// rejected without blocking the ledger.
//
// Entitlements are per-product expiry dates stored as account attributes.
// A customer has access while today is strictly before the expiry. A
// product's granted_by set names other products whose access also
// satisfies it, which expresses bundles and partner tiers:
//
//	ok, err := engine.Entitlements().HasAccess(ctx, "42", catalog.MonthlyPartner)
//
// # Storage
//
// The ledger and referral edges live in a store.Store: memory, sqlite,
// postgres (grove) or mongo. Accounts live behind account.Store: memory or
// redis. Engines sharing one store across processes should share a
// txlock.Locker too, such as store/redis.Locker.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	com_01h2xcejqtf2nbrexx3vqjhp41   // Commission ID
//	ref_01h2xcejqtf2nbrexx3vqjhp41   // Referral edge ID
package affiliate
