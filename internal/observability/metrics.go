package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate from presentation surfaces.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Slice reads never wait on upstream, so p99 here should stay low.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight, including open /events streams.
	HTTPRequestsInFlight prometheus.Gauge

	// HKO open data calls by dataType and status. Watch for: error vs success ratio.
	HKOAPICallsTotal *prometheus.CounterVec

	// HKO latency per call. Watch for: p95 approaching the client timeout.
	HKOAPIDuration *prometheus.HistogramVec

	// Retry attempts against HKO. High values mean an unstable upstream.
	HKOAPIRetriesTotal prometheus.Counter

	// Upstream document cache hits/misses by dataType.
	CacheLookupsTotal *prometheus.CounterVec

	// Cache backend errors by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Slice fetch outcomes: success, failure, discarded (finished after an invalidation).
	SliceRefreshTotal *prometheus.CounterVec

	// MaybeRefresh decisions that did not start a fetch: fresh or in_flight.
	SliceRefreshSkippedTotal *prometheus.CounterVec

	// Wall time of a slice fetch, including queueing for a worker.
	SliceRefreshDuration *prometheus.HistogramVec

	// Invalidations by reason (manual_reload, language_changed, location_changed, refresh_all).
	SliceInvalidationsTotal *prometheus.CounterVec

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials on mutating routes.
	RateLimitDeniedTotal prometheus.Counter

	sliceAgeMu     sync.Mutex
	sliceAgeGauges = map[string]struct{}{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	HKOAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkoApiCallsTotal",
			Help: "Total number of HKO open data API calls",
		},
		[]string{"dataType", "status"},
	)
	HKOAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hkoApiDurationSeconds",
			Help:    "HKO open data API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	HKOAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hkoApiRetriesTotal",
			Help: "Total number of retry attempts for HKO API calls",
		},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Upstream document cache lookups by dataType and result (hit, miss)",
		},
		[]string{"dataType", "result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	SliceRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sliceRefreshTotal",
			Help: "Slice fetches by slice and outcome (success, failure, discarded)",
		},
		[]string{"slice", "outcome"},
	)
	SliceRefreshSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sliceRefreshSkippedTotal",
			Help: "MaybeRefresh checks that did not start a fetch, by slice and reason (fresh, in_flight)",
		},
		[]string{"slice", "reason"},
	)
	SliceRefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sliceRefreshDurationSeconds",
			Help:    "Slice fetch duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"slice"},
	)
	SliceInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sliceInvalidationsTotal",
			Help: "InvalidateAll calls by reason",
		},
		[]string{"reason"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		HKOAPICallsTotal, HKOAPIDuration, HKOAPIRetriesTotal,
		CacheLookupsTotal, CacheErrorsTotal,
		SliceRefreshTotal, SliceRefreshSkippedTotal, SliceRefreshDuration, SliceInvalidationsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterSliceAgeGauge exposes sliceAgeSeconds{slice=name} backed by age,
// which should return seconds since the last successful fetch or -1 when
// absent. Registering the same slice twice is a no-op.
func RegisterSliceAgeGauge(name string, age func() float64) {
	sliceAgeMu.Lock()
	defer sliceAgeMu.Unlock()
	if _, ok := sliceAgeGauges[name]; ok {
		return
	}
	sliceAgeGauges[name] = struct{}{}
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "sliceAgeSeconds",
			Help:        "Seconds since the slice was last fetched successfully; -1 while absent",
			ConstLabels: prometheus.Labels{"slice": name},
		},
		age,
	))
}

// RecordCircuitBreakerTransition counts a breaker transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
