package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/referral"
	"github.com/xraph/affiliate/types"
)

// ==================== Commission models ====================

type commissionModel struct {
	grove.BaseModel `grove:"table:affiliate_commissions"`

	ID                  string    `grove:"id,pk"`
	Date                string    `grove:"date"`
	Amount              int64     `grove:"amount"`
	Currency            string    `grove:"currency"`
	Description         string    `grove:"description"`
	TransactionID       string    `grove:"transaction_id"`
	Polarity            int       `grove:"polarity"`
	Campaign            string    `grove:"campaign"`
	ActorID             string    `grove:"actor_id"`
	EarnerID            string    `grove:"earner_id"`
	PayoutDate          string    `grove:"payout_date"`
	PayoutMethod        string    `grove:"payout_method"`
	PayoutAddress       string    `grove:"payout_address"`
	PayoutTransactionID string    `grove:"payout_transaction_id"`
	RefundDate          string    `grove:"refund_date"`
	Provider            string    `grove:"provider"`
	ProductRef          string    `grove:"product_ref"`
	CreatedAt           time.Time `grove:"created_at"`
	UpdatedAt           time.Time `grove:"updated_at"`
}

func toCommissionModel(c *commission.Commission) *commissionModel {
	return &commissionModel{
		ID:                  c.ID.String(),
		Date:                dateString(c.Date),
		Amount:              c.Amount.Amount,
		Currency:            c.Amount.Currency,
		Description:         c.Description,
		TransactionID:       c.TransactionID,
		Polarity:            int(c.Polarity),
		Campaign:            c.Campaign,
		ActorID:             c.ActorID,
		EarnerID:            c.EarnerID,
		PayoutDate:          dateString(c.PayoutDate),
		PayoutMethod:        c.PayoutMethod,
		PayoutAddress:       c.PayoutAddress,
		PayoutTransactionID: c.PayoutTransactionID,
		RefundDate:          dateString(c.RefundDate),
		Provider:            c.Provider,
		ProductRef:          c.ProductRef,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func fromCommissionModel(m *commissionModel) (*commission.Commission, error) {
	commissionID, err := id.ParseCommissionID(m.ID)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(m.Date)
	if err != nil {
		return nil, err
	}
	payoutDate, err := parseDate(m.PayoutDate)
	if err != nil {
		return nil, err
	}
	refundDate, err := parseDate(m.RefundDate)
	if err != nil {
		return nil, err
	}

	return &commission.Commission{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  commissionID,
		Date:                date,
		Amount:              types.Money{Amount: m.Amount, Currency: m.Currency},
		Description:         m.Description,
		TransactionID:       m.TransactionID,
		Polarity:            event.Polarity(m.Polarity),
		Campaign:            m.Campaign,
		ActorID:             m.ActorID,
		EarnerID:            m.EarnerID,
		PayoutDate:          payoutDate,
		PayoutMethod:        m.PayoutMethod,
		PayoutAddress:       m.PayoutAddress,
		PayoutTransactionID: m.PayoutTransactionID,
		RefundDate:          refundDate,
		Provider:            m.Provider,
		ProductRef:          m.ProductRef,
	}, nil
}

// ==================== Referral models ====================

type referralModel struct {
	grove.BaseModel `grove:"table:affiliate_referrals"`

	ID          string    `grove:"id,pk"`
	CustomerRef string    `grove:"customer_ref"`
	AffiliateID string    `grove:"affiliate_id"`
	SponsorRef  string    `grove:"sponsor_ref"`
	Campaign    string    `grove:"campaign"`
	CreatedAt   time.Time `grove:"created_at"`
}

func toReferralModel(e *referral.Edge) *referralModel {
	return &referralModel{
		ID:          e.ID.String(),
		CustomerRef: e.CustomerRef,
		AffiliateID: e.AffiliateID,
		SponsorRef:  e.SponsorRef,
		Campaign:    e.Campaign,
		CreatedAt:   e.CreatedAt,
	}
}

func fromReferralModel(m *referralModel) (*referral.Edge, error) {
	edgeID, err := id.ParseReferralID(m.ID)
	if err != nil {
		return nil, err
	}
	return &referral.Edge{
		ID:          edgeID,
		CustomerRef: m.CustomerRef,
		AffiliateID: m.AffiliateID,
		SponsorRef:  m.SponsorRef,
		Campaign:    m.Campaign,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// dateString stores the zero Date as an empty string.
func dateString(d types.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseDate(s string) (types.Date, error) {
	if s == "" {
		return types.Date{}, nil
	}
	return types.ParseDate(s)
}
