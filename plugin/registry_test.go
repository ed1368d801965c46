package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

type tierWatcher struct {
	name  string
	calls atomic.Int32
	err   error
	block time.Duration
}

func (w *tierWatcher) Name() string { return w.name }

func (w *tierWatcher) OnTierUpdated(context.Context, *tier.Tier) error {
	w.calls.Add(1)
	if w.block > 0 {
		time.Sleep(w.block)
	}
	return w.err
}

type named string

func (n named) Name() string { return string(n) }

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(named("audit")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(named("audit")); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 plugin, got %d", r.Count())
	}
	if r.Get("audit") == nil || r.Get("missing") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestImplementedInterfaces(t *testing.T) {
	got := implementedInterfaces(&tierWatcher{name: "w"})
	if len(got) != 1 || got[0] != "OnTierUpdated" {
		t.Errorf("expected [OnTierUpdated], got %v", got)
	}
	if got := implementedInterfaces(named("n")); len(got) != 0 {
		t.Errorf("expected no hooks, got %v", got)
	}
}

func TestEmitContinuesPastFailures(t *testing.T) {
	r := quietRegistry()
	failing := &tierWatcher{name: "failing", err: errors.New("boom")}
	ok := &tierWatcher{name: "ok"}
	for _, p := range []Plugin{failing, ok, named("passive")} {
		if err := r.Register(p); err != nil {
			t.Fatal(err)
		}
	}

	r.EmitTierUpdated(context.Background(), &tier.Tier{ID: 1})

	if failing.calls.Load() != 1 || ok.calls.Load() != 1 {
		t.Errorf("expected one call each, got failing=%d ok=%d", failing.calls.Load(), ok.calls.Load())
	}
}

func TestEmitTimesOutSlowPlugins(t *testing.T) {
	r := quietRegistry().WithTimeout(10 * time.Millisecond)
	slow := &tierWatcher{name: "slow", block: time.Second}
	if err := r.Register(slow); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	r.EmitTierUpdated(context.Background(), &tier.Tier{ID: 1})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %s", elapsed)
	}
}

type payoutWatcher struct {
	got *distribution.Payout
}

func (w *payoutWatcher) Name() string { return "payouts" }

func (w *payoutWatcher) OnDistributed(_ context.Context, p *distribution.Payout) error {
	w.got = p
	return nil
}

func TestEmitDistributedPassesPayout(t *testing.T) {
	r := quietRegistry()
	w := &payoutWatcher{}
	if err := r.Register(w); err != nil {
		t.Fatal(err)
	}

	payout := &distribution.Payout{ID: id.NewPayoutID(), Amount: types.NewAmount(273)}
	r.EmitDistributed(context.Background(), payout)

	if w.got != payout {
		t.Fatalf("expected the emitted payout, got %+v", w.got)
	}
}
