// Package tierledger provides a tiered subscription ledger that accrues
// profit for every subscriber in constant time.
//
// Tierledger is designed as a library, not a service. Import it directly into
// your Go application and supply a store, a deposit token and a funding
// adapter. It provides:
//
//   - A tier registry with per-tier duration, reference price and annual rate
//   - Subscribe, replace and unsubscribe with pro-rata refunds
//   - O(1) aggregate accrual that never iterates subscribers
//   - Interval-gated profit distribution with a recipient share
//   - Pluggable persistence (memory, PostgreSQL, SQLite, MongoDB)
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tierledger"
//	    "github.com/xraph/tierledger/store/postgres"
//	)
//
//	l := tierledger.New(postgres.New(db), adapter, token)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Tiers define what a subscription costs and how fast it accrues:
//
//	l.SetTier(ctx, &tier.Tier{
//	    ID:                1,
//	    DurationSeconds:   30 * 24 * 3600,
//	    ReferencePrice:    tierledger.NewAmount(5_000_000),
//	    AnnualRatePercent: 20,
//	})
//
// Subscriptions lock the tier's rate and duration at the time they start:
//
//	receipt, err := l.Subscribe(ctx, "acct-42", 1, payment, time.Now())
//
// Each active subscription contributes weight = deposit * rate percent. The
// ledger keeps only the sum of those weights, so accrual over an interval is
//
//	weight * elapsed / (100 * 31_536_000)
//
// computed once for the whole book. Every weight change is preceded by a
// settlement that folds the accrual so far into the undistributed pool.
//
// Distribution pays the pool out once the configured interval has elapsed:
//
//	res, err := l.Distribute(ctx, time.Now())
//	if res.Deferred {
//	    // too early, nothing moved
//	}
//
// # Time
//
// Every operation that touches accrual takes the current time as an argument.
// The engine never reads a wall clock for accrual, which makes it fully
// deterministic under test.
//
// # Amounts
//
// Amounts are unsigned integers in the deposit token's base unit. Intermediate
// products use arbitrary precision; stored values fit in 128 bits.
package tierledger
