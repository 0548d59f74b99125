package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match how the client,
// cache, refresh and http packages use each collector.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/weather/{slice}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/weather/{slice}").Observe(0.01)
	HKOAPICallsTotal.WithLabelValues("rhrread", "success").Inc()
	HKOAPIDuration.WithLabelValues("success").Observe(0.1)
	CacheLookupsTotal.WithLabelValues("fnd", "hit").Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	SliceRefreshTotal.WithLabelValues("tips", "failure").Inc()
	SliceRefreshSkippedTotal.WithLabelValues("tips", "in_flight").Inc()
	SliceRefreshDuration.WithLabelValues("tips").Observe(1)
	SliceInvalidationsTotal.WithLabelValues("manual_reload").Inc()
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("hko_test", "closed", "open", 1)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("hko_test")); got != 1 {
		t.Errorf("circuitBreakerState = %v, want 1", got)
	}
	if got := testutil.ToFloat64(CircuitBreakerTransitionsTotal.WithLabelValues("hko_test", "closed", "open")); got != 1 {
		t.Errorf("circuitBreakerTransitionsTotal = %v, want 1", got)
	}
}

func TestRegisterSliceAgeGauge_Idempotent(t *testing.T) {
	RegisterSliceAgeGauge("age_test", func() float64 { return 12 })
	RegisterSliceAgeGauge("age_test", func() float64 { return 99 }) // must not panic

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `sliceAgeSeconds{slice="age_test"} 12`) {
		t.Error("metrics output missing sliceAgeSeconds for age_test")
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// the text exposition format.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	MetricsHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
