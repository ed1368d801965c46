package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/distribution"
	ledgerstore "github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

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
		return fmt.Errorf("tierledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tierledger/sqlite: %w: %w", tierledger.ErrMigrationFailed, err)
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("duration_seconds = EXCLUDED.duration_seconds").
		Set("reference_price = EXCLUDED.reference_price").
		Set("annual_rate_percent = EXCLUDED.annual_rate_percent").
		Set("param_a = EXCLUDED.param_a").
		Set("param_b = EXCLUDED.param_b").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetTier(ctx context.Context, tierID tier.ID) (*tier.Tier, error) {
	m := new(tierModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(tierID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tierledger.ErrTierNotFound
		}
		return nil, err
	}
	return fromTierModel(m)
}

func (s *Store) ListTiers(ctx context.Context) ([]*tier.Tier, error) {
	var models []tierModel
	if err := s.sdb.NewSelect(&models).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
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
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", string(account)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tierledger.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) PutSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return putSubscription(ctx, s.sdb, sub)
}

func putSubscription(ctx context.Context, w writer, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := w.NewInsert(m).
		OnConflict("(account) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("tier_id = EXCLUDED.tier_id").
		Set("deposited_amount = EXCLUDED.deposited_amount").
		Set("locked_rate_percent = EXCLUDED.locked_rate_percent").
		Set("locked_duration_seconds = EXCLUDED.locked_duration_seconds").
		Set("started_at = EXCLUDED.started_at").
		Set("ended_at = EXCLUDED.ended_at").
		Set("active = EXCLUDED.active").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("account ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	m := new(accrualStateModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", singletonKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &accrual.State{}, nil
		}
		return nil, err
	}
	return fromAccrualStateModel(m)
}

func (s *Store) PutAccrualState(ctx context.Context, st *accrual.State) error {
	return putAccrualState(ctx, s.sdb, st)
}

func putAccrualState(ctx context.Context, w writer, st *accrual.State) error {
	m := toAccrualStateModel(st)
	_, err := w.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("total_weighted_deposit = EXCLUDED.total_weighted_deposit").
		Set("last_settlement = EXCLUDED.last_settlement").
		Set("accrued_undistributed = EXCLUDED.accrued_undistributed").
		Set("active_subscriptions = EXCLUDED.active_subscriptions").
		Set("total_deposited = EXCLUDED.total_deposited").
		Set("total_distributed = EXCLUDED.total_distributed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Distribution Store ====================

func (s *Store) GetDistributionConfig(ctx context.Context) (*distribution.Config, error) {
	m := new(distributionConfigModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", singletonKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &distribution.Config{}, nil
		}
		return nil, err
	}
	return fromDistributionConfigModel(m), nil
}

func (s *Store) PutDistributionConfig(ctx context.Context, c *distribution.Config) error {
	return putDistributionConfig(ctx, s.sdb, c)
}

func putDistributionConfig(ctx context.Context, w writer, c *distribution.Config) error {
	m := toDistributionConfigModel(c)
	_, err := w.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("recipient = EXCLUDED.recipient").
		Set("share_percent = EXCLUDED.share_percent").
		Set("interval_seconds = EXCLUDED.interval_seconds").
		Set("last_distribution = EXCLUDED.last_distribution").
		Set("paused = EXCLUDED.paused").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) CreatePayout(ctx context.Context, p *distribution.Payout) error {
	return createPayout(ctx, s.sdb, p)
}

func createPayout(ctx context.Context, w writer, p *distribution.Payout) error {
	m := toPayoutModel(p)
	_, err := w.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListPayouts(ctx context.Context, opts distribution.ListOpts) ([]*distribution.Payout, error) {
	var models []payoutModel
	q := s.sdb.NewSelect(&models)

	if !opts.Start.IsZero() {
		q = q.Where("distributed_at >= ?", opts.Start)
	}
	if !opts.End.IsZero() {
		q = q.Where("distributed_at <= ?", opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("distributed_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// Commit writes the changeset inside one transaction.
func (s *Store) Commit(ctx context.Context, cs *ledgerstore.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("tierledger/sqlite: begin: %w: %w", tierledger.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if err := applyChangeset(ctx, tx, cs); err != nil {
		return fmt.Errorf("tierledger/sqlite: %w: %w", tierledger.ErrTransactionFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tierledger/sqlite: commit: %w: %w", tierledger.ErrTransactionFailed, err)
	}
	return nil
}

// writer is satisfied by both the connection pool and an open transaction.
type writer interface {
	NewInsert(model any) *sqlitedriver.InsertQuery
	NewDelete(model any) *sqlitedriver.DeleteQuery
}

func applyChangeset(ctx context.Context, w writer, cs *ledgerstore.Changeset) error {
	for _, account := range cs.RemoveSubscriptions {
		if _, err := w.NewDelete((*subscriptionModel)(nil)).
			Where("account = ?", string(account)).
			Exec(ctx); err != nil {
			return fmt.Errorf("remove subscription %s: %w", account, err)
		}
	}
	for _, payoutID := range cs.RemovePayouts {
		if _, err := w.NewDelete((*payoutModel)(nil)).
			Where("id = ?", payoutID.String()).
			Exec(ctx); err != nil {
			return fmt.Errorf("remove payout %s: %w", payoutID, err)
		}
	}
	for _, sub := range cs.Subscriptions {
		if err := putSubscription(ctx, w, sub); err != nil {
			return fmt.Errorf("put subscription %s: %w", sub.Account, err)
		}
	}
	if cs.Payout != nil {
		if err := createPayout(ctx, w, cs.Payout); err != nil {
			return fmt.Errorf("create payout: %w", err)
		}
	}
	if cs.Config != nil {
		if err := putDistributionConfig(ctx, w, cs.Config); err != nil {
			return fmt.Errorf("put distribution config: %w", err)
		}
	}
	if cs.Accrual != nil {
		if err := putAccrualState(ctx, w, cs.Accrual); err != nil {
			return fmt.Errorf("put accrual state: %w", err)
		}
	}
	return nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
