package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/xraph/affiliate/types"
)

// StripeProvider is the provider id handled by Stripe.
const StripeProvider = "stripe"

// Metadata keys read from Stripe objects.
const (
	stripeMetaCustomer   = "customer_ref"
	stripeMetaSponsor    = "sponsor_ref"
	stripeMetaProduct    = "product_ref"
	stripeMetaCampaign   = "campaign"
	stripeMetaCommission = "commission"
	stripeMetaReason     = "billing_reason"
	stripeMetaAffiliate  = "payout_address"
)

const billingReasonCycle = "subscription_cycle"

// expandableID decodes either a bare id or an expanded object with an id.
type expandableID string

func (x *expandableID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*x = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*x = expandableID(obj.ID)
	return nil
}

type stripeCharge struct {
	ID            string            `json:"id"`
	Currency      string            `json:"currency"`
	Created       int64             `json:"created"`
	Description   string            `json:"description"`
	PaymentIntent expandableID      `json:"payment_intent"`
	Invoice       expandableID      `json:"invoice"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeDispute struct {
	ID            string            `json:"id"`
	Charge        expandableID      `json:"charge"`
	PaymentIntent expandableID      `json:"payment_intent"`
	Currency      string            `json:"currency"`
	Created       int64             `json:"created"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID            string            `json:"id"`
	BillingReason string            `json:"billing_reason"`
	Charge        expandableID      `json:"charge"`
	PaymentIntent expandableID      `json:"payment_intent"`
	Currency      string            `json:"currency"`
	Created       int64             `json:"created"`
	Description   string            `json:"description"`
	Metadata      map[string]string `json:"metadata"`
}

// Stripe normalizes Stripe webhook events. Affiliate references travel in
// object metadata; the payment intent id is the transaction id so that a
// charge, its invoice and its refunds share one key. Subscription payments
// are read from invoice.payment_succeeded; a charge.succeeded that belongs
// to an invoice is dropped unless its metadata names the billing reason.
type Stripe struct{}

// NewStripe returns a Stripe normalizer.
func NewStripe() *Stripe { return &Stripe{} }

// Provider implements Normalizer.
func (s *Stripe) Provider() string { return StripeProvider }

// Normalize implements Normalizer.
func (s *Stripe) Normalize(raw []byte) (*PaymentEvent, error) {
	var evt stripelib.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("%w: stripe: %v", ErrInvalidPayload, err)
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: stripe event %q has no data object", ErrInvalidPayload, evt.ID)
	}

	switch evt.Type {
	case stripelib.EventTypeChargeSucceeded:
		var ch stripeCharge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: decode charge: %v", ErrInvalidPayload, err)
		}
		kind := Sale
		switch reason := ch.Metadata[stripeMetaReason]; {
		case reason == billingReasonCycle:
			kind = Rebill
		case reason == "" && ch.Invoice != "":
			// The charge alone cannot tell a first payment from a renewal;
			// invoice.payment_succeeded carries the billing reason.
			return nil, fmt.Errorf("%w: stripe charge %q is billed by invoice %q", ErrUnsupportedType, ch.ID, ch.Invoice)
		}
		return s.fromCharge(kind, ch)

	case stripelib.EventTypeChargeRefunded:
		var ch stripeCharge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: decode charge: %v", ErrInvalidPayload, err)
		}
		return s.fromCharge(Refund, ch)

	case stripelib.EventTypeChargeDisputeCreated:
		var d stripeDispute
		if err := json.Unmarshal(evt.Data.Raw, &d); err != nil {
			return nil, fmt.Errorf("%w: decode dispute: %v", ErrInvalidPayload, err)
		}
		return s.build(Chargeback, firstNonEmpty(string(d.PaymentIntent), string(d.Charge)),
			d.Currency, d.Created, "", d.Metadata)

	case stripelib.EventTypeInvoicePaymentSucceeded:
		var inv stripeInvoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", ErrInvalidPayload, err)
		}
		var kind Type
		switch inv.BillingReason {
		case "subscription_create":
			kind = Sale
		case billingReasonCycle:
			kind = Rebill
		default:
			return nil, fmt.Errorf("%w: stripe invoice billing_reason %q", ErrUnsupportedType, inv.BillingReason)
		}
		return s.build(kind, firstNonEmpty(string(inv.PaymentIntent), string(inv.Charge), inv.ID),
			inv.Currency, inv.Created, inv.Description, inv.Metadata)
	}

	return nil, fmt.Errorf("%w: stripe %q", ErrUnsupportedType, evt.Type)
}

func (s *Stripe) fromCharge(kind Type, ch stripeCharge) (*PaymentEvent, error) {
	return s.build(kind, firstNonEmpty(string(ch.PaymentIntent), ch.ID),
		ch.Currency, ch.Created, ch.Description, ch.Metadata)
}

func (s *Stripe) build(kind Type, txID, currency string, created int64, desc string, meta map[string]string) (*PaymentEvent, error) {
	amount := types.Zero(currency)
	if v := strings.TrimSpace(meta[stripeMetaCommission]); v != "" {
		m, err := types.ParseMoney(v, currency)
		if err != nil {
			return nil, fmt.Errorf("%w: stripe commission metadata: %v", ErrInvalidPayload, err)
		}
		amount = m
	}
	if created == 0 {
		return nil, fmt.Errorf("%w: stripe object %q has no created timestamp", ErrInvalidPayload, txID)
	}

	return NewPaymentEvent(Fields{
		Provider:      StripeProvider,
		TransactionID: txID,
		Type:          kind,
		Amount:        amount,
		ProductRef:    meta[stripeMetaProduct],
		CustomerRef:   meta[stripeMetaCustomer],
		SponsorRef:    meta[stripeMetaSponsor],
		Campaign:      meta[stripeMetaCampaign],
		Description:   desc,
		OccurredAt:    time.Unix(created, 0),
		PayoutMethod:  "Stripe",
		PayoutAddress: meta[stripeMetaAffiliate],
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
