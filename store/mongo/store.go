package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/distribution"
	ledgerstore "github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// Collection name constants.
const (
	colTiers         = "ledger_tiers"
	colSubscriptions = "ledger_subscriptions"
	colAccrual       = "ledger_accrual_state"
	colDistribution  = "ledger_distribution_config"
	colPayouts       = "ledger_payouts"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
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

// Migrate creates indexes for all tierledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tierledger/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", tierledger.ErrStoreNotReady, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Tier Store ====================

func (s *Store) PutTier(ctx context.Context, t *tier.Tier) error {
	m := toTierModel(t)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"name":                m.Name,
				"duration_seconds":    m.DurationSeconds,
				"reference_price":     m.ReferencePrice,
				"annual_rate_percent": m.AnnualRatePercent,
				"param_a":             m.ParamA,
				"param_b":             m.ParamB,
				"updated_at":          m.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": m.CreatedAt},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierledger/mongo: put tier: %w", err)
	}
	return nil
}

func (s *Store) GetTier(ctx context.Context, tierID tier.ID) (*tier.Tier, error) {
	var m tierModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(tierID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tierledger.ErrTierNotFound
		}
		return nil, fmt.Errorf("tierledger/mongo: get tier: %w", err)
	}
	return fromTierModel(&m)
}

func (s *Store) ListTiers(ctx context.Context) ([]*tier.Tier, error) {
	var models []tierModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tierledger/mongo: list tiers: %w", err)
	}

	result := make([]*tier.Tier, len(models))
	for i := range models {
		t, err := fromTierModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, account types.AccountID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(account)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tierledger.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("tierledger/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) PutSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	set := bson.M{
		"subscription_id":         m.ID,
		"tier_id":                 m.TierID,
		"deposited_amount":        m.DepositedAmount,
		"locked_rate_percent":     m.LockedRatePercent,
		"locked_duration_seconds": m.LockedDurationSeconds,
		"started_at":              m.StartedAt,
		"active":                  m.Active,
		"created_at":              m.CreatedAt,
		"updated_at":              m.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if m.EndedAt != nil {
		set["ended_at"] = *m.EndedAt
	} else {
		update["$unset"] = bson.M{"ended_at": ""}
	}

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Account}).
		SetUpdate(update).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierledger/mongo: put subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tierledger/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Accrual Store ====================

func (s *Store) GetAccrualState(ctx context.Context) (*accrual.State, error) {
	var m accrualStateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": singletonKey}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &accrual.State{}, nil
		}
		return nil, fmt.Errorf("tierledger/mongo: get accrual state: %w", err)
	}
	return fromAccrualStateModel(&m)
}

func (s *Store) PutAccrualState(ctx context.Context, st *accrual.State) error {
	m := toAccrualStateModel(st)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": singletonKey}).
		SetUpdate(bson.M{"$set": bson.M{
			"total_weighted_deposit": m.TotalWeightedDeposit,
			"last_settlement":        m.LastSettlement,
			"accrued_undistributed":  m.AccruedUndistributed,
			"active_subscriptions":   m.ActiveSubscriptions,
			"total_deposited":        m.TotalDeposited,
			"total_distributed":      m.TotalDistributed,
			"updated_at":             m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierledger/mongo: put accrual state: %w", err)
	}
	return nil
}

// ==================== Distribution Store ====================

func (s *Store) GetDistributionConfig(ctx context.Context) (*distribution.Config, error) {
	var m distributionConfigModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": singletonKey}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &distribution.Config{}, nil
		}
		return nil, fmt.Errorf("tierledger/mongo: get distribution config: %w", err)
	}
	return fromDistributionConfigModel(&m), nil
}

func (s *Store) PutDistributionConfig(ctx context.Context, c *distribution.Config) error {
	m := toDistributionConfigModel(c)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": singletonKey}).
		SetUpdate(bson.M{"$set": bson.M{
			"recipient":         m.Recipient,
			"share_percent":     m.SharePercent,
			"interval_seconds":  m.IntervalSeconds,
			"last_distribution": m.LastDistribution,
			"paused":            m.Paused,
			"updated_at":        m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierledger/mongo: put distribution config: %w", err)
	}
	return nil
}

func (s *Store) CreatePayout(ctx context.Context, p *distribution.Payout) error {
	m := toPayoutModel(p)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tierledger.ErrAlreadyExists
		}
		return fmt.Errorf("tierledger/mongo: create payout: %w", err)
	}
	return nil
}

func (s *Store) ListPayouts(ctx context.Context, opts distribution.ListOpts) ([]*distribution.Payout, error) {
	var models []payoutModel

	filter := bson.M{}
	window := bson.M{}
	if !opts.Start.IsZero() {
		window["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		window["$lte"] = opts.End
	}
	if len(window) > 0 {
		filter["distributed_at"] = window
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "distributed_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tierledger/mongo: list payouts: %w", err)
	}

	result := make([]*distribution.Payout, len(models))
	for i := range models {
		p, err := fromPayoutModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// Commit writes the changeset inside a multi-document transaction. The
// server must run as a replica set or sharded cluster.
func (s *Store) Commit(ctx context.Context, cs *ledgerstore.Changeset) error {
	if cs.Empty() {
		return nil
	}

	session, err := s.mdb.Client().StartSession()
	if err != nil {
		return fmt.Errorf("tierledger/mongo: start session: %w: %w", tierledger.ErrTransactionFailed, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, s.applyChangeset(sc, cs)
	})
	if err != nil {
		return fmt.Errorf("tierledger/mongo: %w: %w", tierledger.ErrTransactionFailed, err)
	}
	return nil
}

// applyChangeset runs every write with ctx, which carries the session.
func (s *Store) applyChangeset(ctx context.Context, cs *ledgerstore.Changeset) error {
	for _, account := range cs.RemoveSubscriptions {
		if _, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
			Filter(bson.M{"_id": string(account)}).
			Exec(ctx); err != nil {
			return fmt.Errorf("remove subscription %s: %w", account, err)
		}
	}
	for _, payoutID := range cs.RemovePayouts {
		if _, err := s.mdb.NewDelete((*payoutModel)(nil)).
			Filter(bson.M{"_id": payoutID.String()}).
			Exec(ctx); err != nil {
			return fmt.Errorf("remove payout %s: %w", payoutID, err)
		}
	}
	for _, sub := range cs.Subscriptions {
		if err := s.PutSubscription(ctx, sub); err != nil {
			return err
		}
	}
	if cs.Payout != nil {
		if err := s.CreatePayout(ctx, cs.Payout); err != nil {
			return err
		}
	}
	if cs.Config != nil {
		if err := s.PutDistributionConfig(ctx, cs.Config); err != nil {
			return err
		}
	}
	if cs.Accrual != nil {
		return s.PutAccrualState(ctx, cs.Accrual)
	}
	return nil
}

// ==================== Helpers ====================

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tierledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTiers: {},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "subscription_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "tier_id", Value: 1}}},
		},
		colAccrual:      {},
		colDistribution: {},
		colPayouts: {
			{Keys: bson.D{{Key: "distributed_at", Value: -1}}},
		},
	}
}
