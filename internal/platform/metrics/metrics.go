package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the site and its presence refreshes.
type Metrics struct {
	registry       *prometheus.Registry
	requestsTotal  prometheus.Counter
	errorsTotal    prometheus.Counter
	refreshesTotal *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	presenceState  *prometheus.GaugeVec
	computedAt     prometheus.Gauge
	breakerOpen    prometheus.Gauge
	kinds          []string
}

// New creates and registers Prometheus metrics. kinds lists every presence
// state label so the one-hot gauge always exposes all of them.
func New(kinds []string) *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	refreshesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_refreshes_total",
		Help: "Presence refresh triggers by outcome (updated, fresh, skipped, failed)",
	}, []string{"outcome"})
	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "livewatch_fetch_duration_seconds",
		Help:    "Duration of presence refreshes that reached the video source",
		Buckets: prometheus.DefBuckets,
	})
	presenceState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livewatch_presence_state",
		Help: "1 for the current presence state, 0 otherwise",
	}, []string{"state"})
	computedAt := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_presence_computed_timestamp_seconds",
		Help: "Unix time the cached presence state was computed",
	})
	breakerOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_breaker_open",
		Help: "1 while the video source circuit breaker is open or half-open",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		refreshesTotal,
		fetchDuration,
		presenceState,
		computedAt,
		breakerOpen,
	)

	for _, k := range kinds {
		presenceState.WithLabelValues(k).Set(0)
	}

	return &Metrics{
		registry:       registry,
		requestsTotal:  requestsTotal,
		errorsTotal:    errorsTotal,
		refreshesTotal: refreshesTotal,
		fetchDuration:  fetchDuration,
		presenceState:  presenceState,
		computedAt:     computedAt,
		breakerOpen:    breakerOpen,
		kinds:          kinds,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveRefresh counts a refresh trigger. Durations are recorded only for
// attempts that went upstream.
func (m *Metrics) ObserveRefresh(outcome string, elapsed time.Duration) {
	m.refreshesTotal.WithLabelValues(outcome).Inc()
	if outcome == "updated" || outcome == "failed" {
		m.fetchDuration.Observe(elapsed.Seconds())
	}
}

// SetPresence marks kind as the current state.
func (m *Metrics) SetPresence(kind string, computedAt time.Time) {
	for _, k := range m.kinds {
		v := 0.0
		if k == kind {
			v = 1
		}
		m.presenceState.WithLabelValues(k).Set(v)
	}
	m.computedAt.Set(float64(computedAt.Unix()))
}

// SetBreakerState records the circuit breaker state ("closed", "half-open", "open").
func (m *Metrics) SetBreakerState(state string) {
	if state == "closed" {
		m.breakerOpen.Set(0)
		return
	}
	m.breakerOpen.Set(1)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
