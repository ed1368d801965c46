// Package observability provides a metrics extension for tierledger that
// records event counts and amounts through a MetricFactory.
package observability

import (
	"context"
	"math/big"
	"time"

	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/plugin"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnTierUpdated          = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed           = (*MetricsExtension)(nil)
	_ plugin.OnUnsubscribed         = (*MetricsExtension)(nil)
	_ plugin.OnDistributed          = (*MetricsExtension)(nil)
	_ plugin.OnDistributionDeferred = (*MetricsExtension)(nil)
	_ plugin.OnPauseChanged         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for metric gauges.
type Gauge interface {
	Set(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// MetricsExtension records ledger event metrics.
// Register it as a ledger plugin to track subscriptions and payouts.
type MetricsExtension struct {
	factory MetricFactory

	// Tier metrics
	TierUpdated Counter

	// Subscription metrics
	Subscribed          Counter
	Replaced            Counter
	Unsubscribed        Counter
	DepositAmount       Histogram
	RefundAmount        Histogram
	ForfeitedTotal      Counter
	HeldSeconds         Histogram
	ActiveSubscriptions Gauge

	// Distribution metrics
	Distributions        Counter
	DistributionDeferred Counter
	PayoutAmount         Histogram
	DistributedTotal     Counter
	Paused               Gauge
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		TierUpdated: factory.Counter("tierledger.tier.updated"),

		Subscribed:          factory.Counter("tierledger.subscription.created"),
		Replaced:            factory.Counter("tierledger.subscription.replaced"),
		Unsubscribed:        factory.Counter("tierledger.subscription.ended"),
		DepositAmount:       factory.Histogram("tierledger.subscription.deposit"),
		RefundAmount:        factory.Histogram("tierledger.subscription.refund"),
		ForfeitedTotal:      factory.Counter("tierledger.subscription.forfeited"),
		HeldSeconds:         factory.Histogram("tierledger.subscription.held_seconds"),
		ActiveSubscriptions: factory.Gauge("tierledger.subscription.active"),

		Distributions:        factory.Counter("tierledger.distribution.paid"),
		DistributionDeferred: factory.Counter("tierledger.distribution.deferred"),
		PayoutAmount:         factory.Histogram("tierledger.distribution.payout"),
		DistributedTotal:     factory.Counter("tierledger.distribution.total"),
		Paused:               factory.Gauge("tierledger.distribution.paused"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnTierUpdated implements plugin.OnTierUpdated.
func (m *MetricsExtension) OnTierUpdated(_ context.Context, _ *tier.Tier) error {
	m.TierUpdated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, sub, replaced *subscription.Subscription) error {
	if replaced != nil {
		m.Replaced.Inc()
	} else {
		m.Subscribed.Inc()
	}
	m.DepositAmount.Observe(toFloat(sub.DepositedAmount))
	return nil
}

// OnUnsubscribed implements plugin.OnUnsubscribed.
func (m *MetricsExtension) OnUnsubscribed(_ context.Context, _ *subscription.Subscription, s subscription.Settlement) error {
	m.Unsubscribed.Inc()
	m.RefundAmount.Observe(toFloat(s.Refund))
	m.ForfeitedTotal.Add(toFloat(s.Forfeited))
	m.HeldSeconds.Observe(float64(s.Held))
	return nil
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnDistributed implements plugin.OnDistributed.
func (m *MetricsExtension) OnDistributed(_ context.Context, p *distribution.Payout) error {
	m.Distributions.Inc()
	m.PayoutAmount.Observe(toFloat(p.Amount))
	m.DistributedTotal.Add(toFloat(p.Amount))
	return nil
}

// OnDistributionDeferred implements plugin.OnDistributionDeferred.
func (m *MetricsExtension) OnDistributionDeferred(_ context.Context, _ time.Time) error {
	m.DistributionDeferred.Inc()
	return nil
}

// OnPauseChanged implements plugin.OnPauseChanged.
func (m *MetricsExtension) OnPauseChanged(_ context.Context, paused bool) error {
	if paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
	return nil
}

// SetActiveSubscriptions records the live subscription count. Callers feed
// it from the accrual state since hooks only see individual changes.
func (m *MetricsExtension) SetActiveSubscriptions(n uint64) {
	m.ActiveSubscriptions.Set(float64(n))
}

// toFloat converts base units to float64 for metrics. Precision loss above
// 2^53 is acceptable here.
func toFloat(a types.Amount) float64 {
	f, _ := new(big.Float).SetInt(a.BigInt()).Float64()
	return f
}
