package http

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/lifecycle"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/settings"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/state"
)

// Refresher is the part of the refresh coordinator the handlers drive.
type Refresher interface {
	MaybeRefresh(now time.Time) int
	InvalidateAll(reason string)
}

// Settings is the preference service behind the /settings routes.
type Settings interface {
	Snapshot() settings.Snapshot
	SetLanguage(ctx context.Context, lang models.Language) error
	SetFixedLocation(ctx context.Context, lat, lng float64) error
	SetGPS(ctx context.Context) error
	ClearLocation(ctx context.Context) error
	ReportGPSFix(lat, lng float64) error
	SetRefreshRate(ctx context.Context, rate time.Duration) error
}

// HealthConfig holds the optional dependency checks reported by /health.
type HealthConfig struct {
	StartTime time.Time
	// CachePing is set when the document cache is memcached.
	CachePing func() error
	// StorePing checks the settings database.
	StorePing func(ctx context.Context) error
	// BreakerState reports the HKO circuit breaker state (closed, open, half-open).
	BreakerState func() string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	container    *state.Container
	refresher    Refresher
	settings     Settings
	healthConfig *HealthConfig
	logger       *zap.Logger
	validate     *validator.Validate
	now          func() time.Time

	// keepAlive is the interval between SSE comment lines on idle /events streams.
	keepAlive   time.Duration
	streamsDone chan struct{}
	closeOnce   sync.Once

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	container *state.Container,
	refresher Refresher,
	prefs Settings,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		container:    container,
		refresher:    refresher,
		settings:     prefs,
		healthConfig: healthConfig,
		logger:       logger,
		validate:     v,
		now:          time.Now,
		keepAlive:    15 * time.Second,
		streamsDone:  make(chan struct{}),
	}
}

// CloseStreams ends every open /events stream. Register it with
// http.Server.RegisterOnShutdown; Shutdown does not interrupt streaming handlers.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.streamsDone) })
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	result := h.computeHealthStatus(r.Context(), checks)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"phase":     lifecycle.Current().String(),
		"service":   "hk-weather",
		"version":   "dev",
		"checks":    checks,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(h.now().Sub(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus fills checks and returns the overall status.
// Decision order: shutting-down > starting > settings store down > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context, checks map[string]string) healthResult {
	switch lifecycle.Current() {
	case lifecycle.Draining:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	case lifecycle.Starting:
		return healthResult{"starting", http.StatusServiceUnavailable, "starting"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}

	result := healthResult{"healthy", http.StatusOK, ""}
	if h.healthConfig.StorePing != nil {
		if err := h.healthConfig.StorePing(ctx); err != nil {
			checks["settings"] = "unhealthy"
			result = healthResult{"degraded", http.StatusServiceUnavailable, "settings_store"}
		} else {
			checks["settings"] = "healthy"
		}
	}
	if h.healthConfig.CachePing != nil {
		// Cache loss only costs extra upstream calls; it does not fail health.
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	if h.healthConfig.BreakerState != nil {
		if h.healthConfig.BreakerState() == "open" {
			checks["hkoApi"] = "unhealthy"
			if result.status == "healthy" {
				result = healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
			}
		} else {
			checks["hkoApi"] = "healthy"
		}
	}
	return result
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
