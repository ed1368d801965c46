// Command tierledger runs a standalone ledger with an HTTP API and a
// distribution keeper. Funds move on an in-memory simulated token, which
// makes the binary suitable for development and integration testing.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/api"
	audithook "github.com/xraph/tierledger/audit_hook"
	fundmem "github.com/xraph/tierledger/funding/memory"
	"github.com/xraph/tierledger/internal/logger"
	"github.com/xraph/tierledger/keeper"
	"github.com/xraph/tierledger/observability"
	"github.com/xraph/tierledger/store/memory"
	"github.com/xraph/tierledger/types"
)

const reserveAccount types.AccountID = "tierledger:reserve"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	addrFlag := flag.String("addr", ":8080", "HTTP listen address (or set TIERLEDGER_ADDR env var)")
	operatorTokenFlag := flag.String("operator-token", "", "bearer token for admin routes (or set TIERLEDGER_OPERATOR_TOKEN env var)")
	keeperSpecFlag := flag.String("keeper-spec", keeper.DefaultSpec, "six-field cron spec for distribution ticks (or set TIERLEDGER_KEEPER_SPEC env var)")
	noKeeperFlag := flag.Bool("no-keeper", false, "do not run the distribution keeper")
	decimalsFlag := flag.Int32("decimals", 18, "deposit token decimals used for display")
	reserveSupplyFlag := flag.String("reserve-supply", "1000000000000000000000000", "tokens minted to the simulated funding reserve")
	paymentRateFlag := flag.Uint64("payment-rate", 1, "tokens the simulated adapter sells per unit of payment")

	// Distribution configuration applied at startup when share is set.
	recipientFlag := flag.String("recipient", "", "distribution recipient (or set TIERLEDGER_RECIPIENT env var)")
	shareFlag := flag.Int("share", -1, "recipient share percent, -1 keeps the stored config (or set TIERLEDGER_SHARE env var)")
	intervalFlag := flag.Duration("interval", 24*time.Hour, "minimum time between distributions")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if v := os.Getenv("TIERLEDGER_ADDR"); v != "" {
		*addrFlag = v
	}
	if v := os.Getenv("TIERLEDGER_OPERATOR_TOKEN"); v != "" {
		*operatorTokenFlag = v
	}
	if v := os.Getenv("TIERLEDGER_KEEPER_SPEC"); v != "" {
		*keeperSpecFlag = v
	}
	if v := os.Getenv("TIERLEDGER_RECIPIENT"); v != "" {
		*recipientFlag = v
	}
	if v := os.Getenv("TIERLEDGER_SHARE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TIERLEDGER_SHARE: %w", err)
		}
		*shareFlag = n
	}
	if *shareFlag > 100 {
		return fmt.Errorf("--share must be at most 100, got %d", *shareFlag)
	}
	if *operatorTokenFlag == "" {
		log.Warn("no operator token set, admin routes are disabled")
	}

	supply, err := types.ParseAmount(*reserveSupplyFlag)
	if err != nil {
		return fmt.Errorf("--reserve-supply: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	audit := audithook.New(audithook.RecorderFunc(func(_ context.Context, e *audithook.AuditEvent) error {
		log.Info("audit",
			"action", e.Action,
			"resource", e.Resource,
			"resource_id", e.ResourceID,
			"severity", e.Severity,
			"metadata", e.Metadata,
		)
		return nil
	}), audithook.WithLogger(log), audithook.WithDisabledActions(audithook.ActionDistributionDeferred))

	token := fundmem.NewToken()
	token.Mint(reserveAccount, supply)
	adapter := fundmem.NewAdapter(token, reserveAccount, fundmem.WithPaymentRate(*paymentRateFlag))

	clock := clockwork.NewRealClock()
	l := tierledger.New(memory.New(), adapter, token,
		tierledger.WithLogger(log),
		tierledger.WithClock(clock),
		tierledger.WithTokenDecimals(*decimalsFlag),
		tierledger.WithPlugin(metrics),
		tierledger.WithPlugin(audit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := l.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := l.Stop(); err != nil {
			log.Error("failed to stop ledger", "error", err)
		}
	}()

	if *shareFlag >= 0 {
		err := l.SetDistributionConfig(ctx, types.AccountID(*recipientFlag), uint16(*shareFlag), *intervalFlag) //nolint:gosec // bounded above
		if err != nil {
			return fmt.Errorf("configure distribution: %w", err)
		}
	}

	srv := api.NewServer(l, *addrFlag,
		api.WithClock(clock),
		api.WithLogger(log),
		api.WithOperatorToken(*operatorTokenFlag),
		api.WithRegistry(reg),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if !*noKeeperFlag {
		k, err := keeper.New(l, *keeperSpecFlag, keeper.WithClock(clock), keeper.WithLogger(log))
		if err != nil {
			return err
		}
		g.Go(func() error { return k.Run(gctx) })
	}
	g.Go(func() error {
		t := clock.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.Chan():
				stats, err := l.Stats(gctx)
				if err != nil {
					log.Warn("failed to read ledger stats", "error", err)
					continue
				}
				metrics.SetActiveSubscriptions(stats.ActiveSubscriptions)
			}
		}
	})

	log.Info("tierledger running", "addr", *addrFlag, "keeper", !*noKeeperFlag)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("tierledger stopped")
	return nil
}
