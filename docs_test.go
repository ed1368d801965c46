package tierledger_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/tierledger"
	fundmem "github.com/xraph/tierledger/funding/memory"
	"github.com/xraph/tierledger/store/memory"
	"github.com/xraph/tierledger/tier"
)

// TestDocumentationExamples verifies that the package documentation examples work.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Simulated token and adapter; production code supplies real ones.
		token := fundmem.NewToken()
		adapter := fundmem.NewAdapter(token, "reserve")

		l := tierledger.New(memory.New(), adapter, token,
			tierledger.WithLogger(slog.Default()),
			tierledger.WithTokenDecimals(6),
		)

		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		if err := l.SetTier(ctx, &tier.Tier{
			ID:                1,
			DurationSeconds:   30 * 24 * 3600,
			ReferencePrice:    tierledger.NewAmount(5_000_000),
			AnnualRatePercent: 20,
		}); err != nil {
			t.Fatal(err)
		}

		token.Mint("acct-42", tierledger.NewAmount(5_000_000))
		token.Approve("acct-42", l.CustodyAccount(), tierledger.NewAmount(5_000_000))

		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		receipt, err := l.Subscribe(ctx, "acct-42", 1, tierledger.ZeroAmount(), start)
		if err != nil {
			t.Fatal(err)
		}
		if receipt.Subscription.Weight().String() != "100000000" {
			t.Errorf("unexpected weight %s", receipt.Subscription.Weight())
		}

		if err := l.SetDistributionConfig(ctx, "treasury", 50, 24*time.Hour); err != nil {
			t.Fatal(err)
		}
		res, err := l.Distribute(ctx, start.Add(24*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if res.Deferred || res.Payout == nil {
			t.Fatalf("expected a payout, got %+v", res)
		}

		res, err = l.Distribute(ctx, start.Add(25*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if !res.Deferred {
			t.Error("expected second distribution inside the interval to be deferred")
		}
	})
}
