package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/id"
	"github.com/xraph/affiliate/referral"
	affiliatestore "github.com/xraph/affiliate/store"
	"github.com/xraph/affiliate/types"
)

// Collection name constants.
const (
	colCommissions = "affiliate_commissions"
	colReferrals   = "affiliate_referrals"
)

// compile-time interface check
var _ affiliatestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. The
// conditional inserts depend on the unique indexes Migrate creates.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all affiliate collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("affiliate/mongo: migrate %s indexes: %w", col, err)
		}
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

func (s *Store) InsertCommission(ctx context.Context, c *commission.Commission) (bool, error) {
	m := toCommissionModel(c)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("affiliate/mongo: insert commission: %w", err)
	}
	return true, nil
}

func (s *Store) GetCommission(ctx context.Context, commissionID id.CommissionID) (*commission.Commission, error) {
	var m commissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": commissionID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, commission.ErrNotFound
		}
		return nil, fmt.Errorf("affiliate/mongo: get commission: %w", err)
	}
	return fromCommissionModel(&m)
}

func (s *Store) GetByTransaction(ctx context.Context, transactionID string, polarity event.Polarity) (*commission.Commission, error) {
	var m commissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"transaction_id": transactionID, "polarity": int(polarity)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, commission.ErrNotFound
		}
		return nil, fmt.Errorf("affiliate/mongo: get commission by transaction: %w", err)
	}
	return fromCommissionModel(&m)
}

func (s *Store) MarkRefunded(ctx context.Context, commissionID id.CommissionID, date types.Date) error {
	res, err := s.mdb.NewUpdate((*commissionModel)(nil)).
		Filter(bson.M{"_id": commissionID.String()}).
		Set("refund_date", date.String()).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("affiliate/mongo: mark refunded: %w", err)
	}
	if res.MatchedCount() == 0 {
		return commission.ErrNotFound
	}
	return nil
}

func (s *Store) ListCommissions(ctx context.Context, opts commission.ListOpts) ([]*commission.Commission, error) {
	var models []commissionModel

	filter := bson.M{}
	if opts.EarnerID != "" {
		filter["earner_id"] = opts.EarnerID
	}
	if opts.ActorID != "" {
		filter["actor_id"] = opts.ActorID
	}
	if opts.Campaign != "" {
		filter["campaign"] = opts.Campaign
	}
	if opts.TransactionID != "" {
		filter["transaction_id"] = opts.TransactionID
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("affiliate/mongo: list commissions: %w", err)
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
	pipeline := bson.A{
		bson.M{"$match": bson.M{"earner_id": earnerID}},
		bson.M{
			"$group": bson.M{
				"_id": nil,
				"gross": bson.M{"$sum": bson.M{
					"$cond": bson.A{bson.M{"$gte": bson.A{"$amount", 0}}, "$amount", 0},
				}},
				"reversed": bson.M{"$sum": bson.M{
					"$cond": bson.A{bson.M{"$lt": bson.A{"$amount", 0}}, "$amount", 0},
				}},
				"count": bson.M{"$sum": 1},
			},
		},
	}

	cursor, err := s.mdb.Collection(colCommissions).Aggregate(ctx, pipeline)
	if err != nil {
		return commission.Totals{}, fmt.Errorf("affiliate/mongo: sum earnings: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Gross    int64 `bson:"gross"`
		Reversed int64 `bson:"reversed"`
		Count    int   `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return commission.Totals{}, fmt.Errorf("affiliate/mongo: sum earnings decode: %w", err)
	}

	if len(results) == 0 {
		return commission.Totals{}, nil
	}
	r := results[0]
	return commission.Totals{Gross: r.Gross, Reversed: r.Reversed, Count: r.Count}, nil
}

func (s *Store) DeleteCommissions(ctx context.Context, opts commission.DeleteOpts) (int64, error) {
	if opts.IsEmpty() {
		return 0, nil
	}
	filter := bson.M{}
	if opts.ActorID != "" {
		filter["actor_id"] = opts.ActorID
	}
	if opts.EarnerID != "" {
		filter["earner_id"] = opts.EarnerID
	}
	res, err := s.mdb.NewDelete((*commissionModel)(nil)).
		Filter(filter).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("affiliate/mongo: delete commissions: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Referral Store ====================

func (s *Store) InsertEdgeIfAbsent(ctx context.Context, e *referral.Edge) (bool, error) {
	m := toReferralModel(e)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("affiliate/mongo: insert referral: %w", err)
	}
	return true, nil
}

func (s *Store) GetEdge(ctx context.Context, customerRef string) (*referral.Edge, error) {
	var m referralModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"customer_ref": customerRef}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, referral.ErrNotFound
		}
		return nil, fmt.Errorf("affiliate/mongo: get referral: %w", err)
	}
	return fromReferralModel(&m)
}

func (s *Store) ListEdges(ctx context.Context, affiliateID string, opts referral.ListOpts) ([]*referral.Edge, error) {
	var models []referralModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"affiliate_id": affiliateID}).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("affiliate/mongo: list referrals: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all affiliate collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCommissions: {
			{
				Keys:    bson.D{{Key: "transaction_id", Value: 1}, {Key: "polarity", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "earner_id", Value: 1}, {Key: "date", Value: -1}}},
			{Keys: bson.D{{Key: "actor_id", Value: 1}}},
		},
		colReferrals: {
			{
				Keys:    bson.D{{Key: "customer_ref", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "affiliate_id", Value: 1}}},
		},
	}
}
