package keeper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/distribution"
	fundmem "github.com/xraph/tierledger/funding/memory"
	"github.com/xraph/tierledger/keeper"
	"github.com/xraph/tierledger/store/memory"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type stubDistributor struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (s *stubDistributor) Distribute(_ context.Context, now time.Time) (*distribution.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	if s.err != nil {
		return nil, s.err
	}
	return &distribution.Result{Deferred: true, NextDue: now.Add(time.Hour)}, nil
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := keeper.New(&stubDistributor{}, "not a spec")
	require.Error(t, err)

	k, err := keeper.New(&stubDistributor{}, "")
	require.NoError(t, err)
	assert.Nil(t, k.Last())
}

func TestTickUsesClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	d := &stubDistributor{}
	k, err := keeper.New(d, "@every 1h", keeper.WithClock(clock), keeper.WithLogger(quiet()))
	require.NoError(t, err)

	_, err = k.Tick(context.Background())
	require.NoError(t, err)
	clock.Advance(90 * time.Minute)
	res, err := k.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, d.calls, 2)
	assert.True(t, d.calls[0].Equal(t0))
	assert.True(t, d.calls[1].Equal(t0.Add(90*time.Minute)))
	assert.True(t, res.Deferred)
	assert.True(t, k.Last().At.Equal(t0.Add(90*time.Minute)))
}

func TestTickPausedIsQuiet(t *testing.T) {
	d := &stubDistributor{err: tierledger.ErrPaused}
	k, err := keeper.New(d, "", keeper.WithLogger(quiet()))
	require.NoError(t, err)

	res, err := k.Tick(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, k.Last().Err, tierledger.ErrPaused)
}

func TestTickReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	k, err := keeper.New(&stubDistributor{err: boom}, "", keeper.WithLogger(quiet()))
	require.NoError(t, err)

	_, err = k.Tick(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestTickDistributesLedger(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	token := fundmem.NewToken()
	token.Mint("alice", types.NewAmount(1_000_000))

	l := tierledger.New(memory.New(), fundmem.NewAdapter(token, "reserve"), token,
		tierledger.WithClock(clock),
		tierledger.WithLogger(quiet()),
	)
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop() })
	token.Approve("alice", l.CustodyAccount(), types.NewAmount(1_000_000))

	require.NoError(t, l.SetTier(ctx, &tier.Tier{
		ID:                1,
		DurationSeconds:   365 * 86_400,
		ReferencePrice:    types.NewAmount(1_000_000),
		AnnualRatePercent: 10,
	}))
	_, err := l.Subscribe(ctx, "alice", 1, types.ZeroAmount(), clock.Now())
	require.NoError(t, err)
	require.NoError(t, l.SetDistributionConfig(ctx, "treasury", 50, 24*time.Hour))

	k, err := keeper.New(l, "", keeper.WithClock(clock), keeper.WithLogger(quiet()))
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	res, err := k.Tick(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Payout)
	assert.Equal(t, "273", res.Payout.Amount.String())

	clock.Advance(time.Hour)
	res, err = k.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.True(t, res.NextDue.Equal(t0.Add(48*time.Hour)))
}

func TestRunStopsOnCancel(t *testing.T) {
	k, err := keeper.New(&stubDistributor{}, "@every 1h", keeper.WithLogger(quiet()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
