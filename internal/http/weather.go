package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/refresh"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/state"
)

// sliceView is what every surface sees of one slice. Value is null until the
// first successful fetch.
type sliceView struct {
	Value       interface{} `json:"value"`
	LastUpdated *time.Time  `json:"lastUpdated"`
	Fresh       bool        `json:"fresh"`
	Loading     bool        `json:"loading"`
}

type weatherResponse struct {
	Language   models.Language `json:"language"`
	Conditions sliceView       `json:"conditions"`
	Warnings   sliceView       `json:"warnings"`
	Tips       sliceView       `json:"tips"`
}

func viewOf[T any](s *state.Slice[T], now time.Time) sliceView {
	snap := s.Snapshot()
	v := sliceView{Loading: snap.InFlight}
	if snap.Present {
		v.Value = snap.Value
		at := snap.LastUpdated
		v.LastUpdated = &at
		v.Fresh = now.Sub(at) <= s.Interval()
	}
	return v
}

// GetWeather handles GET /weather, the main screen. It kicks off a refresh of
// any due slice and returns what is held right now.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	h.refresher.MaybeRefresh(now)
	writeJSON(w, http.StatusOK, weatherResponse{
		Language:   h.settings.Snapshot().Language,
		Conditions: viewOf(h.container.Conditions, now),
		Warnings:   viewOf(h.container.Warnings, now),
		Tips:       viewOf(h.container.Tips, now),
	})
}

// GetSlice handles GET /weather/{slice} for current, warnings and tips.
func (h *Handler) GetSlice(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	var view sliceView
	switch mux.Vars(r)["slice"] {
	case "current":
		h.refresher.MaybeRefresh(now)
		view = viewOf(h.container.Conditions, now)
	case "warnings":
		h.refresher.MaybeRefresh(now)
		view = viewOf(h.container.Warnings, now)
	case "tips":
		h.refresher.MaybeRefresh(now)
		view = viewOf(h.container.Tips, now)
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_SLICE", "unknown slice: "+mux.Vars(r)["slice"])
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PostReload handles POST /weather/refresh, the main screen's manual reload.
func (h *Handler) PostReload(w http.ResponseWriter, r *http.Request) {
	h.invalidateAndRefresh(w, r, refresh.ReasonManualReload)
}

// PostRefreshTiles handles POST /tiles/refresh.
func (h *Handler) PostRefreshTiles(w http.ResponseWriter, r *http.Request) {
	h.invalidateAndRefresh(w, r, refresh.ReasonRefreshAll)
}

func (h *Handler) invalidateAndRefresh(w http.ResponseWriter, r *http.Request, reason string) {
	h.refresher.InvalidateAll(reason)
	started := h.refresher.MaybeRefresh(h.now())
	requestLogger(r).Debug("refresh requested", zap.String("reason", reason), zap.Int("started", started))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"reason":  reason,
		"started": started,
	})
}

// Complication types accepted by GetChanceOfRain.
const (
	complicationShortText   = "SHORT_TEXT"
	complicationLongText    = "LONG_TEXT"
	complicationRangedValue = "RANGED_VALUE"
)

type complicationRange struct {
	Value     float64 `json:"value"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	ValueType string  `json:"valueType"`
}

type complicationResponse struct {
	Type               string             `json:"type"`
	Text               string             `json:"text,omitempty"`
	Title              string             `json:"title,omitempty"`
	ContentDescription string             `json:"contentDescription"`
	Range              *complicationRange `json:"range,omitempty"`
	LastUpdated        time.Time          `json:"lastUpdated"`
}

// GetChanceOfRain handles GET /complications/chance-of-rain?type=...
// Responds 204 while the conditions slice is absent.
func (h *Handler) GetChanceOfRain(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = complicationShortText
	}
	if err := h.validate.Var(kind, "oneof=SHORT_TEXT LONG_TEXT RANGED_VALUE"); err != nil {
		writeError(w, r, http.StatusBadRequest, "UNSUPPORTED_TYPE", "unsupported complication type: "+kind)
		return
	}

	h.refresher.MaybeRefresh(h.now())
	snap := h.container.Conditions.Snapshot()
	if !snap.Present {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	text := fmt.Sprintf("%.0f%%", snap.Value.ChanceOfRain)
	resp := complicationResponse{
		Type:               kind,
		ContentDescription: text,
		LastUpdated:        snap.LastUpdated,
	}
	switch kind {
	case complicationShortText, complicationLongText:
		resp.Text = text
	case complicationRangedValue:
		resp.Title = text
		resp.Range = &complicationRange{Value: snap.Value.ChanceOfRain, Min: 0, Max: 100, ValueType: "PERCENTAGE"}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetEvents handles GET /events, a server-sent stream of slice change events.
// Each event is written as "event: <kind>" with the JSON event as data.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	events, cancel := h.container.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		requestLogger(r).Warn("event stream not flushable", zap.Error(err))
		return
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.streamsDone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
