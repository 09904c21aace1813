package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/referral"
	affiliatestore "github.com/xraph/affiliate/store"
	"github.com/xraph/affiliate/types"
)

// compile-time interface check
var _ affiliatestore.Store = (*Store)(nil)

// Conditional insert targets; each names a unique index from the migrations.
const (
	commissionConflict = "(transaction_id, polarity) DO NOTHING"
	edgeConflict       = "(customer_ref) DO NOTHING"
)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("affiliate/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("affiliate/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Commission Store ====================

// InsertCommission relies on the unique (transaction_id, polarity) index;
// a conflicting row is left untouched and reported as not inserted.
func (s *Store) InsertCommission(ctx context.Context, c *commission.Commission) (bool, error) {
	m := toCommissionModel(c)
	res, err := s.sdb.NewInsert(m).
		OnConflict(commissionConflict).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) GetCommission(ctx context.Context, commissionID id.CommissionID) (*commission.Commission, error) {
	m := new(commissionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", commissionID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, commission.ErrNotFound
		}
		return nil, err
	}
	return fromCommissionModel(m)
}

func (s *Store) GetByTransaction(ctx context.Context, transactionID string, polarity event.Polarity) (*commission.Commission, error) {
	m := new(commissionModel)
	err := s.sdb.NewSelect(m).
		Where("transaction_id = ?", transactionID).
		Where("polarity = ?", int(polarity)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, commission.ErrNotFound
		}
		return nil, err
	}
	return fromCommissionModel(m)
}

func (s *Store) MarkRefunded(ctx context.Context, commissionID id.CommissionID, date types.Date) error {
	res, err := s.sdb.NewUpdate((*commissionModel)(nil)).
		Set("refund_date = ?", date.String()).
		Set("updated_at = ?", now()).
		Where("id = ?", commissionID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return commission.ErrNotFound
	}
	return nil
}

func (s *Store) ListCommissions(ctx context.Context, opts commission.ListOpts) ([]*commission.Commission, error) {
	var models []commissionModel
	q := s.sdb.NewSelect(&models)

	for _, f := range []struct{ column, value string }{
		{"earner_id", opts.EarnerID},
		{"actor_id", opts.ActorID},
		{"campaign", opts.Campaign},
		{"transaction_id", opts.TransactionID},
	} {
		if f.value == "" {
			continue
		}
		q = q.Where(f.column+" = ?", f.value)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("date DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*commission.Commission, len(models))
	for i := range models {
		c, err := fromCommissionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) SumEarnings(ctx context.Context, earnerID string) (commission.Totals, error) {
	var t commission.Totals

	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(amount), 0) FROM affiliate_commissions
		WHERE earner_id = ? AND amount >= 0
	`, earnerID).Scan(ctx, &t.Gross)
	if err != nil {
		return t, err
	}

	err = s.sdb.NewRaw(`
		SELECT COALESCE(SUM(amount), 0) FROM affiliate_commissions
		WHERE earner_id = ? AND amount < 0
	`, earnerID).Scan(ctx, &t.Reversed)
	if err != nil {
		return t, err
	}

	var count int64
	err = s.sdb.NewRaw(`
		SELECT COUNT(*) FROM affiliate_commissions WHERE earner_id = ?
	`, earnerID).Scan(ctx, &count)
	if err != nil {
		return t, err
	}
	t.Count = int(count)
	return t, nil
}

func (s *Store) DeleteCommissions(ctx context.Context, opts commission.DeleteOpts) (int64, error) {
	if opts.IsEmpty() {
		return 0, nil
	}
	q := s.sdb.NewDelete((*commissionModel)(nil))
	if opts.ActorID != "" {
		q = q.Where("actor_id = ?", opts.ActorID)
	}
	if opts.EarnerID != "" {
		q = q.Where("earner_id = ?", opts.EarnerID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// ==================== Referral Store ====================

func (s *Store) InsertEdgeIfAbsent(ctx context.Context, e *referral.Edge) (bool, error) {
	m := toReferralModel(e)
	res, err := s.sdb.NewInsert(m).
		OnConflict(edgeConflict).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) GetEdge(ctx context.Context, customerRef string) (*referral.Edge, error) {
	m := new(referralModel)
	err := s.sdb.NewSelect(m).
		Where("customer_ref = ?", customerRef).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, referral.ErrNotFound
		}
		return nil, err
	}
	return fromReferralModel(m)
}

func (s *Store) ListEdges(ctx context.Context, affiliateID string, opts referral.ListOpts) ([]*referral.Edge, error) {
	var models []referralModel
	q := s.sdb.NewSelect(&models).
		Where("affiliate_id = ?", affiliateID)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*referral.Edge, len(models))
	for i := range models {
		e, err := fromReferralModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
