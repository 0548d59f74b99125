package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/observability"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	var ctxID string
	var ctxLogger bool
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {
		ctxID, _ = r.Context().Value("correlation_id").(string)
		_, ctxLogger = r.Context().Value("logger").(*zap.Logger)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/weather", nil))

	header := w.Header().Get("X-Correlation-ID")
	if header == "" {
		t.Fatal("X-Correlation-ID header missing")
	}
	if ctxID != header {
		t.Errorf("context correlation_id = %q, want %q", ctxID, header)
	}
	if !ctxLogger {
		t.Error("request context has no logger")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/weather", nil)
	req.Header.Set("X-Correlation-ID", "watch-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "watch-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want watch-provided-id", got)
	}
}

// TestMiddleware_MetricsUsesRouteTemplate verifies that requests are labelled
// by mux template, not raw path.
func TestMiddleware_MetricsUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/weather/{slice}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := observability.HTTPRequestsTotal.WithLabelValues("GET", "/weather/{slice}", "4xx")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/weather/current", "/weather/tips"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("httpRequestsTotal{route=/weather/{slice},4xx} delta = %v, want 2", got)
	}
}

func TestGetRoute_Fallback(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/weather", "/weather"},
		{"/weather/current", "/weather/{slice}"},
		{"/settings/language", "/settings/{key}"},
		{"/complications/chance-of-rain", "/complications/{name}"},
		{"/wp-admin", "other"},
	}
	for _, tt := range tests {
		if got := getRoute(httptest.NewRequest("GET", tt.path, nil)); got != tt.want {
			t.Errorf("getRoute(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
		<-r.Context().Done()
		if r.Context().Err() != context.DeadlineExceeded {
			t.Errorf("ctx.Err() = %v, want deadline exceeded", r.Context().Err())
		}
	}))

	start := time.Now()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/settings/language", nil))

	if !ok || deadline.Sub(start) > 50*time.Millisecond+10*time.Millisecond {
		t.Errorf("deadline = %v (set %v), want ~50ms after start", deadline.Sub(start), ok)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	limiter := rate.NewLimiter(1, 2)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.Use(RateLimitMiddleware(limiter))
	router.HandleFunc("/weather/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}).Methods("POST")

	before := testutil.ToFloat64(observability.RateLimitDeniedTotal)
	codes := make([]int, 3)
	var last *httptest.ResponseRecorder
	for i := range codes {
		last = httptest.NewRecorder()
		router.ServeHTTP(last, httptest.NewRequest("POST", "/weather/refresh", nil))
		codes[i] = last.Code
	}

	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [202 202 429]", codes)
	}
	if got := decodeError(t, last.Body.Bytes()); got != "RATE_LIMITED" {
		t.Errorf("error code = %q, want RATE_LIMITED", got)
	}
	if got := testutil.ToFloat64(observability.RateLimitDeniedTotal) - before; got != 1 {
		t.Errorf("rateLimitDeniedTotal delta = %v, want 1", got)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	h := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("PUT", "/settings/gps-fix", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 (nil limiter should allow)", w.Code)
	}
}

func TestStatusRecorder_Flush(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner, statusCode: http.StatusOK}

	rec.Flush()

	if !inner.Flushed {
		t.Error("Flush() did not reach the underlying writer")
	}
	if rec.Unwrap() != inner {
		t.Error("Unwrap() did not return the underlying writer")
	}
}
