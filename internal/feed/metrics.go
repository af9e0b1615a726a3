package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRankRequests        = "feed_rank_requests_total"
	MetricRankDuration        = "feed_rank_duration_seconds"
	MetricCandidatesScored    = "feed_candidates_scored_total"
	MetricFetchFailures       = "feed_fetch_failures_total"
	MetricTrendingCacheHits   = "feed_trending_cache_hits_total"
	MetricFetchBreakerState   = "feed_fetch_breaker_state"
	MetricFetchBreakerRejects = "feed_fetch_breaker_rejections_total"
)

// Request kinds used as the "kind" label.
const (
	KindFeed     = "feed"
	KindTrending = "trending"
)

// Request outcomes used as the "status" label.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Metrics contains Prometheus metrics for feed ranking.
// All operations are thread-safe.
type Metrics struct {
	rankRequests        *prometheus.CounterVec
	rankDuration        *prometheus.HistogramVec
	candidatesScored    prometheus.Counter
	fetchFailures       prometheus.Counter
	trendingCacheHits   prometheus.Counter
	fetchBreakerState   prometheus.Gauge
	fetchBreakerRejects prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		rankRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankRequests,
				Help: "Total number of ranking requests by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		rankDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRankDuration,
				Help:    "Histogram of ranking request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"kind"},
		),
		candidatesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCandidatesScored,
			Help: "Total number of candidate posts scored",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFetchFailures,
			Help: "Total number of failed candidate or exclusion fetches",
		}),
		trendingCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricTrendingCacheHits,
			Help: "Total number of trending requests served from cache",
		}),
		fetchBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricFetchBreakerState,
			Help: "Candidate fetch circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
		fetchBreakerRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFetchBreakerRejects,
			Help: "Total number of candidate fetches rejected by the open circuit breaker",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRequest records one ranking request outcome and its duration.
func (m *Metrics) ObserveRequest(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.rankRequests.WithLabelValues(kind, status).Inc()
	m.rankDuration.WithLabelValues(kind).Observe(seconds)
}

// AddCandidatesScored adds n to the scored candidates counter.
func (m *Metrics) AddCandidatesScored(n int) {
	if m == nil {
		return
	}
	m.candidatesScored.Add(float64(n))
}

// IncFetchFailures increments the fetch failure counter.
func (m *Metrics) IncFetchFailures() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

// IncTrendingCacheHits increments the trending cache hit counter.
func (m *Metrics) IncTrendingCacheHits() {
	if m == nil {
		return
	}
	m.trendingCacheHits.Inc()
}

// SetBreakerState sets the breaker state gauge.
func (m *Metrics) SetBreakerState(state float64) {
	if m == nil {
		return
	}
	m.fetchBreakerState.Set(state)
}

// IncBreakerRejects increments the breaker rejection counter.
func (m *Metrics) IncBreakerRejects() {
	if m == nil {
		return
	}
	m.fetchBreakerRejects.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rankRequests,
		m.rankDuration,
		m.candidatesScored,
		m.fetchFailures,
		m.trendingCacheHits,
		m.fetchBreakerState,
		m.fetchBreakerRejects,
	}
}
