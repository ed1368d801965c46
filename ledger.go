package tierledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/funding"
	"github.com/xraph/tierledger/plugin"
	"github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// Default account names used when none are configured.
const (
	DefaultCustodyAccount types.AccountID = "tierledger:custody"
	DefaultSinkAccount    types.AccountID = "tierledger:sink"
)

// Ledger is the subscription accrual engine.
//
// Every mutating operation runs under one mutex: settlement, weight update,
// subscription write and config write happen as a single critical section.
// Records are committed first and funds move afterwards, inside the same
// section. A failed transfer restores the records committed before it.
type Ledger struct {
	mu sync.Mutex

	store   store.Store
	adapter funding.Adapter
	token   funding.Token
	plugins *plugin.Registry
	logger  *slog.Logger

	// clock stamps record metadata only. Accrual math always uses the
	// caller-supplied time.
	clock clockwork.Clock

	custody  types.AccountID
	sink     types.AccountID
	decimals int32
}

// New creates a new Ledger instance.
func New(s store.Store, adapter funding.Adapter, token funding.Token, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		adapter: adapter,
		token:   token,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		clock:   clockwork.NewRealClock(),
		custody: DefaultCustodyAccount,
		sink:    DefaultSinkAccount,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the clock used for record timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithCustodyAccount sets the account that holds deposits.
func WithCustodyAccount(account types.AccountID) Option {
	return func(l *Ledger) {
		l.custody = account
	}
}

// WithSink sets the account that receives the non-recipient share of each payout.
func WithSink(account types.AccountID) Option {
	return func(l *Ledger) {
		l.sink = account
	}
}

// WithTokenDecimals sets the number of decimals used when amounts are logged.
func WithTokenDecimals(decimals int32) Option {
	return func(l *Ledger) {
		l.decimals = decimals
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("tierledger started",
		"custody", l.custody,
		"sink", l.sink,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Logger returns the ledger's logger.
func (l *Ledger) Logger() *slog.Logger { return l.logger }

// CustodyAccount returns the account that holds deposits.
func (l *Ledger) CustodyAccount() types.AccountID { return l.custody }

// ──────────────────────────────────────────────────
// Tier Registry
// ──────────────────────────────────────────────────

// SetTier creates or reconfigures a tier. Existing subscriptions keep the
// rate and duration they locked in.
func (l *Ledger) SetTier(ctx context.Context, t *tier.Tier) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: tier %d: %w", ErrInvalidTier, t.ID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	existing, err := l.store.GetTier(ctx, t.ID)
	switch {
	case err == nil:
		t.Entity = existing.Entity
		t.Touch(now)
	case IsNotFound(err):
		t.Entity = types.NewEntity(now)
	default:
		return fmt.Errorf("load tier %d: %w", t.ID, err)
	}

	if err := l.store.PutTier(ctx, t); err != nil {
		return fmt.Errorf("store tier %d: %w", t.ID, err)
	}

	l.logger.Info("tier updated",
		"tier", t.ID,
		"duration_seconds", t.DurationSeconds,
		"reference_price", t.ReferencePrice.String(),
		"annual_rate_percent", t.AnnualRatePercent,
	)
	l.plugins.EmitTierUpdated(ctx, t)
	return nil
}

// GetTier retrieves a tier by id.
func (l *Ledger) GetTier(ctx context.Context, tierID tier.ID) (*tier.Tier, error) {
	return l.store.GetTier(ctx, tierID)
}

// ListTiers returns every configured tier ordered by id.
func (l *Ledger) ListTiers(ctx context.Context) ([]*tier.Tier, error) {
	return l.store.ListTiers(ctx)
}

// ──────────────────────────────────────────────────
// Accrual reads
// ──────────────────────────────────────────────────

// EstimateProfit projects the undistributed pool to now without settling.
func (l *Ledger) EstimateProfit(ctx context.Context, now time.Time) (types.Amount, error) {
	st, err := l.store.GetAccrualState(ctx)
	if err != nil {
		return types.ZeroAmount(), err
	}
	return st.Estimate(now)
}

// AccrualState returns the last committed accrual record.
func (l *Ledger) AccrualState(ctx context.Context) (*accrual.State, error) {
	return l.store.GetAccrualState(ctx)
}

// Stats summarizes the ledger.
type Stats struct {
	ActiveSubscriptions  uint64       `json:"active_subscriptions"`
	TotalDeposited       types.Amount `json:"total_deposited"`
	TotalDistributed     types.Amount `json:"total_distributed"`
	TotalWeightedDeposit types.Amount `json:"total_weighted_deposit"`
	AccruedUndistributed types.Amount `json:"accrued_undistributed"`
	LastSettlement       time.Time    `json:"last_settlement"`
}

// Stats returns aggregate figures from the accrual record.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	st, err := l.store.GetAccrualState(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		ActiveSubscriptions:  st.ActiveSubscriptions,
		TotalDeposited:       st.TotalDeposited,
		TotalDistributed:     st.TotalDistributed,
		TotalWeightedDeposit: st.TotalWeightedDeposit,
		AccruedUndistributed: st.AccruedUndistributed,
		LastSettlement:       st.LastSettlement,
	}, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// settle loads the accrual record and settles a copy of it at now. It
// returns both the loaded record and the settled copy.
func (l *Ledger) settle(ctx context.Context, now time.Time) (base, settled *accrual.State, err error) {
	base, err = l.store.GetAccrualState(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load accrual state: %w", err)
	}
	settled = base.Clone()
	if _, err := settled.Settle(now); err != nil {
		l.logger.Error("settlement rejected",
			"now", now,
			"last_settlement", base.LastSettlement,
			"error", err,
		)
		return nil, nil, err
	}
	return base, settled, nil
}

// commit persists the records of one operation.
func (l *Ledger) commit(ctx context.Context, op string, cs *store.Changeset) error {
	if err := l.store.Commit(ctx, cs); err != nil {
		l.logger.Error("commit failed",
			"operation", op,
			"error", err,
		)
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// revert commits undo after a transfer failed with cause. When undo cannot
// be committed the records no longer match the funds and both errors are
// returned.
func (l *Ledger) revert(ctx context.Context, op string, undo *store.Changeset, cause error) error {
	if err := l.store.Commit(ctx, undo); err != nil {
		l.logger.Error("revert failed, records no longer match funds",
			"operation", op,
			"cause", cause,
			"error", err,
		)
		return errors.Join(cause, fmt.Errorf("%s: revert: %w", op, err))
	}
	l.logger.Warn("operation reverted",
		"operation", op,
		"error", cause,
	)
	return cause
}

func (l *Ledger) display(a types.Amount) string {
	return a.Display(l.decimals)
}
