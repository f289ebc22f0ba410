package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger.
type Metrics struct {
	AppendLatency       prometheus.Histogram
	AppendFailures      prometheus.Counter
	Height              prometheus.Gauge
	IntegrityViolations prometheus.Counter
}

// New registers ledger metrics with reg. A nil registerer creates unregistered
// collectors, which keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AppendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credtrust_ledger_append_duration_seconds",
			Help:    "Duration of ledger appends including persistence",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
		AppendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "credtrust_ledger_append_failures_total",
			Help: "Ledger appends rejected or failed to persist",
		}),
		Height: f.NewGauge(prometheus.GaugeOpts{
			Name: "credtrust_ledger_height_blocks",
			Help: "Number of blocks in the ledger including genesis",
		}),
		IntegrityViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "credtrust_ledger_integrity_violations_total",
			Help: "Integrity violations found by chain validation",
		}),
	}
}

func (m *Metrics) ObserveAppend(d time.Duration) {
	if m != nil {
		m.AppendLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncAppendFailure() {
	if m != nil {
		m.AppendFailures.Inc()
	}
}

func (m *Metrics) SetHeight(n int) {
	if m != nil {
		m.Height.Set(float64(n))
	}
}

func (m *Metrics) AddIntegrityViolations(n int) {
	if m != nil && n > 0 {
		m.IntegrityViolations.Add(float64(n))
	}
}
