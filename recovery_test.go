package tierledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/funding"
	fundmem "github.com/xraph/tierledger/funding/memory"
	"github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/store/memory"
	"github.com/xraph/tierledger/types"
)

// flakyStore fails the next failCommits commits.
type flakyStore struct {
	*memory.Store

	mu          sync.Mutex
	failCommits int
}

func (s *flakyStore) Commit(ctx context.Context, cs *store.Changeset) error {
	s.mu.Lock()
	if s.failCommits > 0 {
		s.failCommits--
		s.mu.Unlock()
		return tierledger.ErrTransactionFailed
	}
	s.mu.Unlock()
	return s.Store.Commit(ctx, cs)
}

func (s *flakyStore) failNextCommit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits++
}

// flakyToken fails transfers to selected accounts.
type flakyToken struct {
	*fundmem.Token

	mu   sync.Mutex
	fail map[types.AccountID]int
}

func (t *flakyToken) Transfer(ctx context.Context, from, to types.AccountID, amount types.Amount) error {
	t.mu.Lock()
	if t.fail[to] > 0 {
		t.fail[to]--
		t.mu.Unlock()
		return funding.ErrUnavailable
	}
	t.mu.Unlock()
	return t.Token.Transfer(ctx, from, to, amount)
}

func (t *flakyToken) failNextTransferTo(account types.AccountID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail[account]++
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyStore, *flakyToken) {
	t.Helper()

	token := fundmem.NewToken()
	token.Mint(reserve, types.NewAmount(100_000_000))
	ft := &flakyToken{Token: token, fail: make(map[types.AccountID]int)}
	fs := &flakyStore{Store: memory.New()}
	adapter := fundmem.NewAdapter(token, reserve)

	f := &fixture{
		ctx:     context.Background(),
		ledger:  tierledger.New(fs, adapter, ft, tierledger.WithClock(clockwork.NewFakeClockAt(t0))),
		store:   fs.Store,
		token:   token,
		adapter: adapter,
	}
	if err := f.ledger.Start(f.ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = f.ledger.Stop() })

	f.setTier(t, 1, 1_000_000, 10, 365*day)
	for _, account := range []types.AccountID{"alice", "bob"} {
		f.fund(account, 1_000_000)
		f.subscribe(t, account, 1, t0)
	}
	return f, fs, ft
}

func TestUnsubscribeRetryAfterCommitFailurePaysOnce(t *testing.T) {
	f, fs, _ := newFlakyFixture(t)

	fs.failNextCommit()
	if _, err := f.ledger.Unsubscribe(f.ctx, "alice", t0.Add(day)); !errors.Is(err, tierledger.ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
	if got := f.balance(t, "alice"); got != "0" {
		t.Fatalf("failed commit moved funds: alice holds %s", got)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != "2000000" {
		t.Fatalf("expected custody 2000000, got %s", got)
	}

	w := f.unsubscribe(t, "alice", t0.Add(day))
	if w.Settlement.Refund.String() != "999727" {
		t.Errorf("expected refund 999727, got %s", w.Settlement.Refund)
	}
	if got := f.balance(t, "alice"); got != "999727" {
		t.Errorf("expected alice refunded once, got %s", got)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != "1000273" {
		t.Errorf("expected custody 1000273, got %s", got)
	}
	if _, err := f.ledger.Unsubscribe(f.ctx, "alice", t0.Add(day)); !errors.Is(err, tierledger.ErrNotSubscribed) {
		t.Errorf("expected ErrNotSubscribed on a third call, got %v", err)
	}
	f.assertWeightInvariant(t)
}

func TestSubscribeCommitFailureMovesNoFunds(t *testing.T) {
	f, fs, _ := newFlakyFixture(t)
	f.fund("carol", 1_000_000)

	fs.failNextCommit()
	if _, err := f.ledger.Subscribe(f.ctx, "carol", 1, types.ZeroAmount(), t0.Add(day)); !errors.Is(err, tierledger.ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
	if got := f.balance(t, "carol"); got != "1000000" {
		t.Errorf("expected carol untouched, got %s", got)
	}
	if _, err := f.ledger.GetSubscription(f.ctx, "carol"); !tierledger.IsNotFound(err) {
		t.Errorf("expected no subscription, got %v", err)
	}
	f.assertWeightInvariant(t)
}

func TestUnsubscribeRefundFailureRestoresSubscription(t *testing.T) {
	f, _, ft := newFlakyFixture(t)

	ft.failNextTransferTo("alice")
	_, err := f.ledger.Unsubscribe(f.ctx, "alice", t0.Add(day))
	if !errors.Is(err, tierledger.ErrCustodyShortfall) || !tierledger.IsRetryable(err) {
		t.Fatalf("expected a retryable custody error, got %v", err)
	}

	sub, err := f.ledger.GetSubscription(f.ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !sub.Active || sub.EndedAt != nil {
		t.Errorf("expected alice still subscribed, got %+v", sub)
	}
	st, err := f.ledger.AccrualState(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.LastSettlement.Equal(t0) || st.ActiveSubscriptions != 2 {
		t.Errorf("expected accrual record restored, got %+v", st)
	}
	f.assertWeightInvariant(t)

	w := f.unsubscribe(t, "alice", t0.Add(day))
	if got := f.balance(t, "alice"); got != w.Settlement.Refund.String() {
		t.Errorf("expected alice to hold the refund %s, got %s", w.Settlement.Refund, got)
	}
}

func TestReplaceRefundFailureRestoresPreviousTier(t *testing.T) {
	f, _, ft := newFlakyFixture(t)
	f.setTier(t, 2, 500_000, 5, 365*day)

	ft.failNextTransferTo("alice")
	if _, err := f.ledger.Subscribe(f.ctx, "alice", 2, types.ZeroAmount(), t0.Add(day)); !tierledger.IsFundingError(err) {
		t.Fatalf("expected a funding error, got %v", err)
	}

	sub, err := f.ledger.GetSubscription(f.ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if sub.TierID != 1 || !sub.Active {
		t.Errorf("expected alice back on tier 1, got tier %d active=%v", sub.TierID, sub.Active)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != "2000000" {
		t.Errorf("expected custody 2000000, got %s", got)
	}
	f.assertWeightInvariant(t)
}

func TestDistributeRecipientFailureRestoresPool(t *testing.T) {
	f, _, ft := newFlakyFixture(t)
	if err := f.ledger.SetDistributionConfig(f.ctx, treasury, 50, day); err != nil {
		t.Fatal(err)
	}

	ft.failNextTransferTo(treasury)
	if _, err := f.ledger.Distribute(f.ctx, t0.Add(day)); !errors.Is(err, tierledger.ErrCustodyShortfall) {
		t.Fatalf("expected ErrCustodyShortfall, got %v", err)
	}

	payouts, err := f.ledger.ListPayouts(f.ctx, distribution.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(payouts) != 0 {
		t.Errorf("expected the payout removed, got %d", len(payouts))
	}
	cfg, err := f.ledger.DistributionConfig(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.LastDistribution.IsZero() {
		t.Errorf("expected last distribution unchanged, got %s", cfg.LastDistribution)
	}

	res, err := f.ledger.Distribute(f.ctx, t0.Add(day))
	if err != nil {
		t.Fatalf("Distribute retry: %v", err)
	}
	if res.Payout == nil || res.Payout.Amount.String() != "547" {
		t.Fatalf("expected a 547 payout on retry, got %+v", res)
	}
	if got := f.balance(t, treasury); got != "273" {
		t.Errorf("expected treasury paid once, got %s", got)
	}
}

func TestDistributeSinkFailureKeepsSinkShareInPool(t *testing.T) {
	f, _, ft := newFlakyFixture(t)
	if err := f.ledger.SetDistributionConfig(f.ctx, treasury, 50, day); err != nil {
		t.Fatal(err)
	}

	ft.failNextTransferTo(tierledger.DefaultSinkAccount)
	if _, err := f.ledger.Distribute(f.ctx, t0.Add(day)); !errors.Is(err, tierledger.ErrCustodyShortfall) {
		t.Fatalf("expected ErrCustodyShortfall, got %v", err)
	}
	if got := f.balance(t, treasury); got != "273" {
		t.Fatalf("expected treasury 273, got %s", got)
	}

	payouts, err := f.ledger.ListPayouts(f.ctx, distribution.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(payouts) != 1 || payouts[0].Amount.String() != "273" || !payouts[0].ToSink.IsZero() {
		t.Fatalf("expected one 273 payout to the recipient only, got %+v", payouts)
	}
	st, err := f.ledger.AccrualState(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.AccruedUndistributed.String() != "274" || st.TotalDistributed.String() != "273" {
		t.Errorf("expected sink share kept in pool, got undistributed=%s distributed=%s",
			st.AccruedUndistributed, st.TotalDistributed)
	}

	// The retained share goes out with the next payout.
	res, err := f.ledger.Distribute(f.ctx, t0.Add(2*day))
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if res.Payout == nil || res.Payout.Amount.String() != "821" {
		t.Fatalf("expected an 821 payout, got %+v", res)
	}
	if got := f.balance(t, tierledger.DefaultSinkAccount); got != "411" {
		t.Errorf("expected sink 411, got %s", got)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != st.TotalDeposited.Sub(types.NewAmount(273+821)).String() {
		t.Errorf("unexpected custody balance %s", got)
	}
}
