package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ MetricFactory = (*PrometheusFactory)(nil)

// PrometheusFactory creates metrics registered with a Prometheus registerer.
// Dotted names are converted to Prometheus style, so
// "tierledger.subscription.created" becomes
// "tierledger_subscription_created".
type PrometheusFactory struct {
	factory promauto.Factory

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
	gauges     map[string]prometheus.Gauge
}

// NewPrometheusFactory returns a factory registering with reg. A nil reg
// uses the default registerer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		factory:    promauto.With(reg),
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
		gauges:     make(map[string]prometheus.Gauge),
	}
}

// Counter returns the counter for name, creating it on first use.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := f.factory.NewCounter(prometheus.CounterOpts{
		Name: metricName(name) + "_total",
		Help: "Total " + strings.ReplaceAll(name, ".", " "),
	})
	f.counters[name] = c
	return c
}

// Histogram returns the histogram for name, creating it on first use.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := f.factory.NewHistogram(prometheus.HistogramOpts{
		Name:    metricName(name),
		Help:    "Distribution of " + strings.ReplaceAll(name, ".", " "),
		Buckets: prometheus.ExponentialBuckets(1, 10, 12), // 1 to 1e11 base units
	})
	f.histograms[name] = h
	return h
}

// Gauge returns the gauge for name, creating it on first use.
func (f *PrometheusFactory) Gauge(name string) Gauge {
	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := f.gauges[name]; ok {
		return g
	}
	g := f.factory.NewGauge(prometheus.GaugeOpts{
		Name: metricName(name),
		Help: "Current " + strings.ReplaceAll(name, ".", " "),
	})
	f.gauges[name] = g
	return g
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
