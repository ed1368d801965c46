package tierledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/tierledger"
	fundmem "github.com/xraph/tierledger/funding/memory"
	"github.com/xraph/tierledger/store/memory"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

const (
	day     = 24 * time.Hour
	reserve = types.AccountID("reserve")
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ctx     context.Context
	ledger  *tierledger.Ledger
	store   *memory.Store
	token   *fundmem.Token
	adapter *fundmem.Adapter
}

func newFixture(t *testing.T, opts ...tierledger.Option) *fixture {
	t.Helper()

	token := fundmem.NewToken()
	token.Mint(reserve, types.NewAmount(100_000_000))
	adapter := fundmem.NewAdapter(token, reserve)
	s := memory.New()

	opts = append([]tierledger.Option{tierledger.WithClock(clockwork.NewFakeClockAt(t0))}, opts...)
	f := &fixture{
		ctx:     context.Background(),
		ledger:  tierledger.New(s, adapter, token, opts...),
		store:   s,
		token:   token,
		adapter: adapter,
	}
	if err := f.ledger.Start(f.ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = f.ledger.Stop() })
	return f
}

// fund mints tokens to account and approves custody to pull all of them.
func (f *fixture) fund(account types.AccountID, amount uint64) {
	f.token.Mint(account, types.NewAmount(amount))
	f.token.Approve(account, f.ledger.CustodyAccount(), types.NewAmount(amount))
}

func (f *fixture) setTier(t *testing.T, tierID tier.ID, price uint64, rate uint16, duration time.Duration) {
	t.Helper()
	err := f.ledger.SetTier(f.ctx, &tier.Tier{
		ID:                tierID,
		DurationSeconds:   uint64(duration / time.Second),
		ReferencePrice:    types.NewAmount(price),
		AnnualRatePercent: rate,
	})
	if err != nil {
		t.Fatalf("SetTier(%d): %v", tierID, err)
	}
}

func (f *fixture) subscribe(t *testing.T, account types.AccountID, tierID tier.ID, at time.Time) *tierledger.Receipt {
	t.Helper()
	r, err := f.ledger.Subscribe(f.ctx, account, tierID, types.ZeroAmount(), at)
	if err != nil {
		t.Fatalf("Subscribe(%s, %d): %v", account, tierID, err)
	}
	return r
}

func (f *fixture) unsubscribe(t *testing.T, account types.AccountID, at time.Time) *tierledger.Withdrawal {
	t.Helper()
	w, err := f.ledger.Unsubscribe(f.ctx, account, at)
	if err != nil {
		t.Fatalf("Unsubscribe(%s): %v", account, err)
	}
	return w
}

func (f *fixture) balance(t *testing.T, account types.AccountID) string {
	t.Helper()
	b, err := f.token.BalanceOf(f.ctx, account)
	if err != nil {
		t.Fatal(err)
	}
	return b.String()
}

// assertWeightInvariant checks the aggregate weight against a full
// enumeration of active subscriptions.
func (f *fixture) assertWeightInvariant(t *testing.T) {
	t.Helper()
	subs, err := f.ledger.ListSubscriptions(f.ctx, subscription.ListOpts{ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	want := types.ZeroAmount()
	for _, s := range subs {
		want = want.Add(s.Weight())
	}
	st, err := f.ledger.AccrualState(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.TotalWeightedDeposit.Equal(want) {
		t.Fatalf("aggregate weight %s != enumerated %s", st.TotalWeightedDeposit, want)
	}
	if st.ActiveSubscriptions != uint64(len(subs)) {
		t.Fatalf("active count %d != enumerated %d", st.ActiveSubscriptions, len(subs))
	}
}
