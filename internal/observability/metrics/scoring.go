package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScoringMetrics tracks the scoring pipeline. The per-method counter is the
// primary operator signal for AI-provider outages: a drift from rag_enhanced
// toward heuristic means upstream capabilities are failing.
type ScoringMetrics struct {
	registry *prometheus.Registry
	service  string

	scoredTotal     *prometheus.CounterVec
	tierFailures    *prometheus.CounterVec
	scoringDuration *prometheus.HistogramVec
	scoringInFlight prometheus.Gauge
}

func NewScoringMetrics(service string) *ScoringMetrics {
	registry := prometheus.NewRegistry()

	scoredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitchscore",
			Subsystem: "scoring",
			Name:      "sessions_scored_total",
			Help:      "Total scored sessions by the tier that produced the result.",
		},
		[]string{"service", "method"},
	)
	tierFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitchscore",
			Subsystem: "scoring",
			Name:      "tier_failures_total",
			Help:      "Scoring tier failures by tier.",
		},
		[]string{"service", "tier"},
	)
	scoringDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pitchscore",
			Subsystem: "scoring",
			Name:      "duration_seconds",
			Help:      "Scoring duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	scoringInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pitchscore",
			Subsystem: "scoring",
			Name:      "in_flight",
			Help:      "Number of in-flight scoring operations.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(scoredTotal, tierFailures, scoringDuration, scoringInFlight)

	return &ScoringMetrics{
		registry:        registry,
		service:         service,
		scoredTotal:     scoredTotal,
		tierFailures:    tierFailures,
		scoringDuration: scoringDuration,
		scoringInFlight: scoringInFlight,
	}
}

func (m *ScoringMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry so another binary's /metrics endpoint can
// serve these collectors alongside its own.
func (m *ScoringMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *ScoringMetrics) StartScoring() {
	m.scoringInFlight.Inc()
}

func (m *ScoringMetrics) FinishScoring(method, outcome string, elapsed time.Duration) {
	m.scoringInFlight.Dec()
	if method != "" && method != "none" {
		m.scoredTotal.WithLabelValues(m.service, method).Inc()
	}
	m.scoringDuration.WithLabelValues(m.service, outcome).Observe(elapsed.Seconds())
}

func (m *ScoringMetrics) TierFailed(tier string) {
	m.tierFailures.WithLabelValues(m.service, tier).Inc()
}
