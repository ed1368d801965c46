// Package keeper triggers ledger distributions on a cron schedule.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/distribution"
)

// DefaultSpec runs every minute at second zero. Distribute is a no-op until
// the configured interval has elapsed, so frequent ticks are cheap.
const DefaultSpec = "0 * * * * *"

// DefaultTimeout bounds a single run.
const DefaultTimeout = 25 * time.Second

// Distributor is the part of the ledger the keeper drives.
type Distributor interface {
	Distribute(ctx context.Context, now time.Time) (*distribution.Result, error)
}

// Keeper calls Distribute on a schedule with the time from its clock.
type Keeper struct {
	ledger  Distributor
	spec    string
	clock   clockwork.Clock
	logger  *slog.Logger
	timeout time.Duration
	cron    *cron.Cron

	mu   sync.Mutex
	last *Run
}

// Run records the outcome of one tick.
type Run struct {
	At     time.Time
	Result *distribution.Result
	Err    error
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithClock sets the clock that supplies "now".
func WithClock(c clockwork.Clock) Option {
	return func(k *Keeper) { k.clock = c }
}

// WithLogger sets the keeper logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

// WithTimeout bounds a single run.
func WithTimeout(d time.Duration) Option {
	return func(k *Keeper) {
		if d > 0 {
			k.timeout = d
		}
	}
}

// New creates a keeper for d on a six-field cron spec (seconds first). An
// empty spec uses DefaultSpec.
func New(d Distributor, spec string, opts ...Option) (*Keeper, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	k := &Keeper{
		ledger:  d,
		spec:    spec,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(k)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("keeper: invalid spec %q: %w", spec, err)
	}

	clog := cronLogger{k.logger}
	k.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	return k, nil
}

// Start schedules runs. Each run derives its context from ctx.
func (k *Keeper) Start(ctx context.Context) error {
	if _, err := k.cron.AddFunc(k.spec, func() {
		rctx, cancel := context.WithTimeout(ctx, k.timeout)
		defer cancel()
		_, _ = k.Tick(rctx)
	}); err != nil {
		return fmt.Errorf("keeper: schedule %q: %w", k.spec, err)
	}
	k.cron.Start()
	k.logger.Info("keeper started", "spec", k.spec)
	return nil
}

// Stop stops scheduling and waits for a running tick or ctx, whichever
// comes first.
func (k *Keeper) Stop(ctx context.Context) error {
	done := k.cron.Stop().Done()
	select {
	case <-done:
		k.logger.Info("keeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the keeper and blocks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	if err := k.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	return k.Stop(stopCtx)
}

// Tick runs one distribution attempt now. A paused ledger is not an error.
func (k *Keeper) Tick(ctx context.Context) (*distribution.Result, error) {
	now := k.clock.Now()
	res, err := k.ledger.Distribute(ctx, now)
	k.record(&Run{At: now, Result: res, Err: err})

	switch {
	case errors.Is(err, tierledger.ErrPaused):
		k.logger.Debug("keeper: distribution paused")
		return nil, nil //nolint:nilnil // paused is a quiet outcome
	case err != nil:
		k.logger.Error("keeper: distribute failed",
			"fatal", tierledger.IsFatal(err),
			"error", err,
		)
		return nil, err
	case res.Payout != nil:
		k.logger.Info("keeper: distributed",
			"payout", res.Payout.ID.String(),
			"amount", res.Payout.Amount.String(),
		)
	case res.Deferred:
		k.logger.Debug("keeper: not due", "next_due", res.NextDue)
	}
	return res, nil
}

// Last returns the most recent run, or nil before the first tick.
func (k *Keeper) Last() *Run {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.last
}

func (k *Keeper) record(r *Run) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.last = r
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
