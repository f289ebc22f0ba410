package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification runs and the issuer registry.
type Metrics struct {
	MethodLatency     *prometheus.HistogramVec
	MethodOutcomes    *prometheus.CounterVec
	Verdicts          *prometheus.CounterVec
	OverallConfidence prometheus.Histogram
	IssuerCache       *prometheus.CounterVec
	IssuerCalls       *prometheus.CounterVec
}

// New registers verification metrics with reg. A nil registerer creates
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MethodLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credtrust_verification_method_duration_seconds",
			Help:    "Duration of each verification method",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		MethodOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credtrust_verification_method_results_total",
			Help: "Verification method results by status",
		}, []string{"method", "status"}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credtrust_verification_verdicts_total",
			Help: "Verification reports by verdict",
		}, []string{"verdict"}),
		OverallConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credtrust_verification_overall_confidence",
			Help:    "Overall confidence of produced reports",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		IssuerCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credtrust_issuer_cache_lookups_total",
			Help: "Issuer lookup cache hits and misses",
		}, []string{"result"}),
		IssuerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credtrust_issuer_registry_calls_total",
			Help: "Issuer registry calls by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveMethod(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.MethodLatency.WithLabelValues(method).Observe(d.Seconds())
	m.MethodOutcomes.WithLabelValues(method, status).Inc()
}

func (m *Metrics) ObserveReport(verdict string, confidence int) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(verdict).Inc()
	m.OverallConfidence.Observe(float64(confidence))
}

func (m *Metrics) IncCacheHit() {
	if m != nil {
		m.IssuerCache.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) IncCacheMiss() {
	if m != nil {
		m.IssuerCache.WithLabelValues("miss").Inc()
	}
}

// IncRegistryCall counts a registry call by outcome: ok, not_found, error, rejected.
func (m *Metrics) IncRegistryCall(outcome string) {
	if m != nil {
		m.IssuerCalls.WithLabelValues(outcome).Inc()
	}
}
