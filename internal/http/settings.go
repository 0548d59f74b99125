package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/settings"
)

const maxBodyBytes = 1 << 16

var errBadBody = errors.New("malformed request body")

type settingsResponse struct {
	Language      models.Language           `json:"language"`
	Location      models.LocationPreference `json:"location"`
	GPSFix        *models.Location          `json:"gpsFix,omitempty"`
	RefreshRateMs int64                     `json:"refreshRateMs"`
}

type languageRequest struct {
	Language string `json:"language" validate:"required,oneof=en zh"`
}

type locationRequest struct {
	Mode string   `json:"mode" validate:"required,oneof=default gps fixed"`
	Lat  *float64 `json:"lat" validate:"required_if=Mode fixed,omitempty,min=-90,max=90"`
	Lng  *float64 `json:"lng" validate:"required_if=Mode fixed,omitempty,min=-180,max=180"`
}

type gpsFixRequest struct {
	Lat *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" validate:"required,min=-180,max=180"`
}

type refreshRateRequest struct {
	RefreshRateMs int64 `json:"refreshRateMs" validate:"required,min=60000"`
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settingsView())
}

// PutLanguage handles PUT /settings/language. A change invalidates every slice.
func (h *Handler) PutLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := h.decode(r, &req); err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	if err := h.settings.SetLanguage(r.Context(), models.Language(req.Language)); err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.settingsView())
}

// PutLocation handles PUT /settings/location. A change invalidates every slice.
func (h *Handler) PutLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := h.decode(r, &req); err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	var err error
	switch models.LocationMode(req.Mode) {
	case models.LocationDefault:
		err = h.settings.ClearLocation(r.Context())
	case models.LocationGPS:
		err = h.settings.SetGPS(r.Context())
	case models.LocationFixed:
		err = h.settings.SetFixedLocation(r.Context(), *req.Lat, *req.Lng)
	}
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.settingsView())
}

// PutGPSFix handles PUT /settings/gps-fix. The fix is used by the next fetch
// in gps mode and does not invalidate data.
func (h *Handler) PutGPSFix(w http.ResponseWriter, r *http.Request) {
	var req gpsFixRequest
	if err := h.decode(r, &req); err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	if err := h.settings.ReportGPSFix(*req.Lat, *req.Lng); err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutRefreshRate handles PUT /settings/refresh-rate.
func (h *Handler) PutRefreshRate(w http.ResponseWriter, r *http.Request) {
	var req refreshRateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	if err := h.settings.SetRefreshRate(r.Context(), time.Duration(req.RefreshRateMs)*time.Millisecond); err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.settingsView())
}

func (h *Handler) settingsView() settingsResponse {
	snap := h.settings.Snapshot()
	return settingsResponse{
		Language:      snap.Language,
		Location:      snap.Location,
		GPSFix:        snap.GPSFix,
		RefreshRateMs: snap.RefreshRate.Milliseconds(),
	}
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return h.validate.Struct(dst)
}

func (h *Handler) writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", validationMessage(verrs))
	case errors.Is(err, errBadBody):
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error())
	case errors.Is(err, settings.ErrInvalidLocation), errors.Is(err, settings.ErrInvalidRefreshRate):
		writeError(w, r, http.StatusBadRequest, "INVALID_SETTING", err.Error())
	default:
		requestLogger(r).Error("settings update failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "SETTINGS_UNAVAILABLE", "Unable to save settings")
	}
}

func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
