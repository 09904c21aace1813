package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the affiliate store (SQLite).
var Migrations = migrate.NewGroup("affiliate")

// The unique indexes are what the conflict clauses in store.go target.
const commissionsSchema = `
CREATE TABLE IF NOT EXISTS affiliate_commissions (
    id                    TEXT PRIMARY KEY,
    date                  TEXT NOT NULL,
    amount                INTEGER NOT NULL DEFAULT 0,
    currency              TEXT NOT NULL DEFAULT 'usd',
    description           TEXT NOT NULL DEFAULT '',
    transaction_id        TEXT NOT NULL,
    polarity              INTEGER NOT NULL,
    campaign              TEXT NOT NULL DEFAULT '',
    actor_id              TEXT NOT NULL DEFAULT '',
    earner_id             TEXT NOT NULL DEFAULT '',
    payout_date           TEXT NOT NULL DEFAULT '',
    payout_method         TEXT NOT NULL DEFAULT '',
    payout_address        TEXT NOT NULL DEFAULT '',
    payout_transaction_id TEXT NOT NULL DEFAULT '',
    refund_date           TEXT NOT NULL DEFAULT '',
    provider              TEXT NOT NULL DEFAULT '',
    product_ref           TEXT NOT NULL DEFAULT '',
    created_at            TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at            TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_affiliate_commissions_tx ON affiliate_commissions (transaction_id, polarity);
CREATE INDEX IF NOT EXISTS idx_affiliate_commissions_earner ON affiliate_commissions (earner_id, date);
CREATE INDEX IF NOT EXISTS idx_affiliate_commissions_actor ON affiliate_commissions (actor_id);
`

const referralsSchema = `
CREATE TABLE IF NOT EXISTS affiliate_referrals (
    id           TEXT PRIMARY KEY,
    customer_ref TEXT NOT NULL,
    affiliate_id TEXT NOT NULL DEFAULT '',
    sponsor_ref  TEXT NOT NULL DEFAULT '',
    campaign     TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_affiliate_referrals_customer ON affiliate_referrals (customer_ref);
CREATE INDEX IF NOT EXISTS idx_affiliate_referrals_affiliate ON affiliate_referrals (affiliate_id);
`

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_affiliate_commissions",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, commissionsSchema)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS affiliate_commissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_affiliate_referrals",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, referralsSchema)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS affiliate_referrals`)
				return err
			},
		},
	)
}
