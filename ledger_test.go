package tierledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

func TestSetTier(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.SetTier(f.ctx, &tier.Tier{ID: 1, ReferencePrice: types.NewAmount(10)})
	if !errors.Is(err, tierledger.ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier for zero duration, got %v", err)
	}

	f.setTier(t, 2, 1_000, 10, 30*day)
	got, err := f.ledger.GetTier(f.ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReferencePrice.String() != "1000" || got.AnnualRatePercent != 10 {
		t.Errorf("unexpected tier: %+v", got)
	}

	_, err = f.ledger.GetTier(f.ctx, 9)
	if !tierledger.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	f.setTier(t, 1, 500, 5, day)
	tiers, err := f.ledger.ListTiers(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tiers) != 2 || tiers[0].ID != 1 || tiers[1].ID != 2 {
		t.Errorf("expected tiers ordered [1 2], got %d tiers", len(tiers))
	}
}

func TestReconfiguringTierKeepsLockedTerms(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1_000_000)
	f.setTier(t, 1, 100_000, 10, 30*day)
	f.subscribe(t, "alice", 1, t0)

	f.setTier(t, 1, 100_000, 90, 5*day)

	sub, err := f.ledger.GetSubscription(f.ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if sub.LockedRatePercent != 10 {
		t.Errorf("expected locked rate 10, got %d", sub.LockedRatePercent)
	}
	if sub.LockedDurationSeconds != uint64((30*day)/time.Second) {
		t.Errorf("expected locked duration of 30 days, got %d", sub.LockedDurationSeconds)
	}
	f.assertWeightInvariant(t)
}

// A single subscriber for fifteen days at 20% of 5,000,000.
func TestSingleSubscriberAccrual(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 5_000_000)
	f.setTier(t, 1, 5_000_000, 20, 30*day)
	f.subscribe(t, "alice", 1, t0)

	est, err := f.ledger.EstimateProfit(f.ctx, t0.Add(15*day))
	if err != nil {
		t.Fatal(err)
	}
	if est.String() != "41095" {
		t.Errorf("expected 41095 accrued, got %s", est)
	}

	w := f.unsubscribe(t, "alice", t0.Add(15*day))
	if w.Settlement.Refund.String() != "4958905" {
		t.Errorf("expected refund 4958905, got %s", w.Settlement.Refund)
	}
	if got := f.balance(t, "alice"); got != "4958905" {
		t.Errorf("expected alice balance 4958905, got %s", got)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != "41095" {
		t.Errorf("expected custody 41095, got %s", got)
	}
}

func TestEstimateIsMonotone(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 5_000_000)
	f.setTier(t, 1, 5_000_000, 20, 30*day)
	f.subscribe(t, "alice", 1, t0)

	prev := types.ZeroAmount()
	for h := 0; h <= 72; h += 6 {
		got, err := f.ledger.EstimateProfit(f.ctx, t0.Add(time.Duration(h)*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if got.LessThan(prev) {
			t.Fatalf("estimate decreased at hour %d: %s < %s", h, got, prev)
		}
		prev = got
	}
}

// Aggregate accrual must match per-subscription ground truth. Times are
// multiples of a hundredth of a year and deposits multiples of 10,000 so
// every division is exact.
func TestAggregateMatchesEnumeration(t *testing.T) {
	const unit = time.Duration(accrual.SecondsPerYear/100) * time.Second
	at := func(k int) time.Time { return t0.Add(time.Duration(k) * unit) }

	f := newFixture(t)
	for _, a := range []types.AccountID{"a", "b", "c"} {
		f.fund(a, 10_000_000)
	}
	f.setTier(t, 1, 1_000_000, 10, 100*unit)
	f.setTier(t, 2, 2_500_000, 25, 100*unit)
	f.setTier(t, 3, 400_000, 7, 100*unit)

	type held struct {
		deposit, rate uint64
		from, to      int
	}
	// accrued = deposit * rate * units / 10_000
	truth := func(hs []held) uint64 {
		var sum uint64
		for _, h := range hs {
			sum += h.deposit * h.rate * uint64(h.to-h.from) / 10_000
		}
		return sum
	}

	f.subscribe(t, "a", 1, at(0))
	f.assertWeightInvariant(t)
	f.subscribe(t, "b", 2, at(3))
	f.assertWeightInvariant(t)
	f.subscribe(t, "c", 3, at(5))
	f.assertWeightInvariant(t)
	f.subscribe(t, "a", 2, at(8))
	f.assertWeightInvariant(t)
	f.unsubscribe(t, "b", at(12))
	f.assertWeightInvariant(t)

	want := truth([]held{
		{1_000_000, 10, 0, 8},
		{2_500_000, 25, 3, 12},
		{400_000, 7, 5, 20},
		{2_500_000, 25, 8, 20},
	})
	got, err := f.ledger.EstimateProfit(f.ctx, at(20))
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != types.NewAmount(want).String() {
		t.Fatalf("aggregate %s != ground truth %d", got, want)
	}

	f.unsubscribe(t, "a", at(20))
	f.unsubscribe(t, "c", at(20))
	f.assertWeightInvariant(t)

	st, err := f.ledger.AccrualState(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != st.AccruedUndistributed.String() {
		t.Errorf("custody %s != undistributed %s after all exits", got, st.AccruedUndistributed)
	}
}

func TestUnsubscribeRefundMatchesIndependentAccrual(t *testing.T) {
	f := newFixture(t)
	f.fund("bob", 3_000_000)
	f.setTier(t, 1, 3_000_000, 15, 90*day)
	f.subscribe(t, "bob", 1, t0)

	heldSeconds := uint64((30 * day) / time.Second)
	accrued := uint64(3_000_000) * 15 * heldSeconds / (100 * accrual.SecondsPerYear)
	want := 3_000_000 - accrued

	w := f.unsubscribe(t, "bob", t0.Add(30*day))
	if w.Settlement.Refund.String() != types.NewAmount(want).String() {
		t.Errorf("expected refund %d, got %s", want, w.Settlement.Refund)
	}
	if w.Subscription.Active || w.Subscription.EndedAt == nil {
		t.Error("expected subscription closed")
	}
	f.assertWeightInvariant(t)
}

// A one-year subscription sees a single distribution five days in and
// leaves ten days before its duration ends.
func TestUnsubscribeAfterDistributionNearDurationEnd(t *testing.T) {
	f := newFixture(t)
	f.fund("xavier", 5_000_000)
	f.setTier(t, 1, 5_000_000, 20, 365*day)
	if err := f.ledger.SetDistributionConfig(f.ctx, treasury, 50, day); err != nil {
		t.Fatal(err)
	}
	f.subscribe(t, "xavier", 1, t0)

	res, err := f.ledger.Distribute(f.ctx, t0.Add(5*day))
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	distributed := uint64(5_000_000) * 20 * uint64((5*day)/time.Second) / (100 * accrual.SecondsPerYear)
	if res.Payout == nil || res.Payout.Amount.String() != types.NewAmount(distributed).String() {
		t.Fatalf("expected payout %d, got %+v", distributed, res)
	}

	exit := t0.Add(355 * day)
	accrued := uint64(5_000_000) * 20 * uint64((355*day)/time.Second) / (100 * accrual.SecondsPerYear)
	wantRefund := 5_000_000 - accrued

	w := f.unsubscribe(t, "xavier", exit)
	if w.Settlement.Refund.String() != types.NewAmount(wantRefund).String() {
		t.Errorf("expected refund %d, got %s", wantRefund, w.Settlement.Refund)
	}
	if !w.Settlement.Forfeited.IsZero() {
		t.Errorf("expected nothing forfeited before the duration ends, got %s", w.Settlement.Forfeited)
	}
	if got := f.balance(t, "xavier"); got != types.NewAmount(wantRefund).String() {
		t.Errorf("expected xavier to hold %d, got %s", wantRefund, got)
	}

	st, err := f.ledger.AccrualState(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	undistributed := accrued - distributed
	if st.AccruedUndistributed.String() != types.NewAmount(undistributed).String() {
		t.Errorf("expected %d undistributed, got %s", undistributed, st.AccruedUndistributed)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != st.AccruedUndistributed.String() {
		t.Errorf("expected custody %s to equal the undistributed pool, got %s", st.AccruedUndistributed, got)
	}
	if !st.TotalWeightedDeposit.IsZero() || st.ActiveSubscriptions != 0 {
		t.Errorf("expected empty aggregate, got weight=%s active=%d", st.TotalWeightedDeposit, st.ActiveSubscriptions)
	}
}

func TestUnsubscribePastDurationRefundsNothing(t *testing.T) {
	f := newFixture(t)
	f.fund("carol", 1_000_000)
	f.setTier(t, 1, 1_000_000, 100, 10*day)
	f.subscribe(t, "carol", 1, t0)

	w := f.unsubscribe(t, "carol", t0.Add(20*day))
	if !w.Settlement.Refund.IsZero() {
		t.Errorf("expected zero refund, got %s", w.Settlement.Refund)
	}
	if w.Settlement.Forfeited.String() != "945206" {
		t.Errorf("expected forfeited 945206, got %s", w.Settlement.Forfeited)
	}

	st, err := f.ledger.AccrualState(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.AccruedUndistributed.String() != "1000000" {
		t.Errorf("expected the whole deposit undistributed, got %s", st.AccruedUndistributed)
	}
	if got := f.balance(t, "carol"); got != "0" {
		t.Errorf("expected carol balance 0, got %s", got)
	}
}

func TestReplaceCreditsUnrealizedDeposit(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 10_000_000)
	f.setTier(t, 1, 1_000_000, 10, 100*day)
	f.setTier(t, 2, 2_000_000, 20, 100*day)

	f.subscribe(t, "alice", 1, t0)
	r := f.subscribe(t, "alice", 2, t0.Add(10*day))

	if r.Replaced == nil || r.Replaced.TierID != 1 || r.Replaced.Active {
		t.Fatalf("expected closed tier 1 subscription in receipt, got %+v", r.Replaced)
	}
	if r.Price.Credit.String() != "997261" || r.Price.Net.String() != "1002739" {
		t.Errorf("expected credit 997261 net 1002739, got %s / %s", r.Price.Credit, r.Price.Net)
	}
	if got := f.balance(t, "alice"); got != "7997261" {
		t.Errorf("expected alice balance 7997261, got %s", got)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != "2002739" {
		t.Errorf("expected custody 2002739, got %s", got)
	}

	sub, err := f.ledger.GetSubscription(f.ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if sub.TierID != 2 || sub.DepositedAmount.String() != "2000000" || !sub.Active {
		t.Errorf("unexpected current subscription: %+v", sub)
	}
	f.assertWeightInvariant(t)
}

func TestReplaceWithCheaperTierRefundsSurplus(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 10_000_000)
	f.setTier(t, 1, 1_000_000, 10, 100*day)
	f.setTier(t, 3, 500_000, 5, 100*day)

	f.subscribe(t, "alice", 1, t0)
	r := f.subscribe(t, "alice", 3, t0.Add(10*day))

	if !r.Price.Net.IsZero() || r.Price.Refund.String() != "497261" {
		t.Errorf("expected net 0 refund 497261, got %s / %s", r.Price.Net, r.Price.Refund)
	}
	if got := f.balance(t, "alice"); got != "9497261" {
		t.Errorf("expected alice balance 9497261, got %s", got)
	}
	f.assertWeightInvariant(t)
}

func TestSubscribeAcquiresShortfall(t *testing.T) {
	f := newFixture(t)
	f.token.Approve("dave", f.ledger.CustodyAccount(), types.NewAmount(1_000_000))
	f.setTier(t, 1, 1_000_000, 10, 30*day)

	est, err := f.ledger.EstimateSubscriptionPrice(f.ctx, "dave", 1, t0)
	if err != nil {
		t.Fatal(err)
	}
	if est.Shortfall.String() != "1000000" || est.Payment.String() != "1000000" {
		t.Errorf("expected shortfall and payment 1000000, got %s / %s", est.Shortfall, est.Payment)
	}

	r, err := f.ledger.Subscribe(f.ctx, "dave", 1, types.NewAmount(1_000_000), t0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if r.Acquired.String() != "1000000" {
		t.Errorf("expected 1000000 acquired, got %s", r.Acquired)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != "1000000" {
		t.Errorf("expected custody 1000000, got %s", got)
	}
}

func TestSubscribeCombinesTokensAndPayment(t *testing.T) {
	f := newFixture(t)
	f.fund("erin", 1000)
	f.setTier(t, 1, 5000, 10, 30*day)

	est, err := f.ledger.EstimateSubscriptionPrice(f.ctx, "erin", 1, t0)
	if err != nil {
		t.Fatal(err)
	}
	if est.Pull.String() != "1000" || est.Shortfall.String() != "4000" || est.Payment.String() != "4000" {
		t.Errorf("expected pull 1000, shortfall 4000, payment 4000, got %s / %s / %s",
			est.Pull, est.Shortfall, est.Payment)
	}

	r, err := f.ledger.Subscribe(f.ctx, "erin", 1, types.NewAmount(4000), t0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if r.Acquired.String() != "4000" || r.Subscription.DepositedAmount.String() != "5000" {
		t.Errorf("expected 4000 acquired toward a 5000 deposit, got %s / %s", r.Acquired, r.Subscription.DepositedAmount)
	}
	if got := f.balance(t, "erin"); got != "0" {
		t.Errorf("expected erin to hold nothing, got %s", got)
	}
	if got := f.balance(t, f.ledger.CustodyAccount()); got != "5000" {
		t.Errorf("expected custody 5000, got %s", got)
	}
	if got := f.adapter.Received().String(); got != "4000" {
		t.Errorf("expected adapter to keep 4000 payment, got %s", got)
	}
}

func TestSubscribeFailuresLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(f *fixture)
		payment     uint64
		wantBalance string
	}{
		{
			name: "adapter cannot cover shortfall",
			setup: func(f *fixture) {
				f.token.Approve("erin", f.ledger.CustodyAccount(), types.NewAmount(1_000_000))
			},
			payment:     10,
			wantBalance: "10",
		},
		{
			name: "pulled tokens returned when adapter falls short",
			setup: func(f *fixture) {
				f.fund("erin", 300_000)
			},
			payment:     10,
			wantBalance: "300010",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.setTier(t, 1, 1_000_000, 10, 30*day)
			tt.setup(f)

			_, err := f.ledger.Subscribe(f.ctx, "erin", 1, types.NewAmount(tt.payment), t0)
			if !errors.Is(err, tierledger.ErrInsufficientFunding) {
				t.Fatalf("expected ErrInsufficientFunding, got %v", err)
			}
			if !tierledger.IsFundingError(err) {
				t.Errorf("expected a funding error, got %v", err)
			}

			if _, err := f.ledger.GetSubscription(f.ctx, "erin"); !tierledger.IsNotFound(err) {
				t.Errorf("expected no subscription, got %v", err)
			}
			st, err := f.ledger.AccrualState(f.ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !st.TotalWeightedDeposit.IsZero() || !st.LastSettlement.IsZero() {
				t.Errorf("accrual state changed: %+v", st)
			}
			if got := f.balance(t, f.ledger.CustodyAccount()); got != "0" {
				t.Errorf("custody kept funds: %s", got)
			}
			// Tokens bought with the payment stay with the account.
			if got := f.balance(t, "erin"); got != tt.wantBalance {
				t.Errorf("expected erin to hold %s, got %s", tt.wantBalance, got)
			}
		})
	}
}

func TestSubscribeUnknownTier(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Subscribe(f.ctx, "alice", 7, types.ZeroAmount(), t0)
	if !errors.Is(err, tierledger.ErrTierNotFound) {
		t.Fatalf("expected ErrTierNotFound, got %v", err)
	}
}

func TestUnsubscribeWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Unsubscribe(f.ctx, "nobody", t0)
	if !errors.Is(err, tierledger.ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}

	f.fund("alice", 1_000)
	f.setTier(t, 1, 1_000, 10, day)
	f.subscribe(t, "alice", 1, t0)
	f.unsubscribe(t, "alice", t0.Add(time.Hour))
	if _, err := f.ledger.Unsubscribe(f.ctx, "alice", t0.Add(2*time.Hour)); !errors.Is(err, tierledger.ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed after exit, got %v", err)
	}
}

func TestClockRegressionIsFatal(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 2_000)
	f.setTier(t, 1, 1_000, 10, day)
	f.subscribe(t, "alice", 1, t0.Add(time.Hour))

	_, err := f.ledger.Unsubscribe(f.ctx, "alice", t0)
	if !errors.Is(err, tierledger.ErrClockRegression) {
		t.Fatalf("expected ErrClockRegression, got %v", err)
	}
	if !tierledger.IsFatal(err) {
		t.Error("expected IsFatal")
	}
	if _, err := f.ledger.EstimateProfit(f.ctx, t0); !errors.Is(err, tierledger.ErrClockRegression) {
		t.Errorf("expected ErrClockRegression from estimate, got %v", err)
	}
}
