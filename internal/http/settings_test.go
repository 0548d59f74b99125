package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
)

func decodeError(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return resp.Error.Code
}

func TestHandler_GetSettings_Defaults(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("GET", "/settings", "")

	var resp settingsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Language != models.LanguageChinese || resp.Location.Mode != models.LocationDefault || resp.RefreshRateMs != 1800000 {
		t.Errorf("settings = %+v, want zh/default/1800000", resp)
	}
}

func TestHandler_PutLanguage(t *testing.T) {
	env := newTestEnv(t, nil)
	var changed []models.Language
	env.settings.OnLanguageChange(func(l models.Language) { changed = append(changed, l) })

	w := env.do("PUT", "/settings/language", `{"language":"en"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}
	if env.settings.Language() != models.LanguageEnglish {
		t.Errorf("Language() = %q, want en", env.settings.Language())
	}
	if len(changed) != 1 || changed[0] != models.LanguageEnglish {
		t.Errorf("language hooks = %v, want [en]", changed)
	}

	env.do("PUT", "/settings/language", `{"language":"en"}`)
	if len(changed) != 1 {
		t.Errorf("setting the same language fired hooks again: %v", changed)
	}
}

func TestHandler_PutLocation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
		wantMode models.LocationMode
	}{
		{"fixed", `{"mode":"fixed","lat":22.28,"lng":114.17}`, http.StatusOK, "", models.LocationFixed},
		{"fixed at zero", `{"mode":"fixed","lat":0,"lng":0}`, http.StatusOK, "", models.LocationFixed},
		{"gps", `{"mode":"gps"}`, http.StatusOK, "", models.LocationGPS},
		{"default", `{"mode":"default"}`, http.StatusOK, "", models.LocationDefault},
		{"fixed missing lat", `{"mode":"fixed","lng":114.17}`, http.StatusBadRequest, "VALIDATION_FAILED", models.LocationDefault},
		{"lat out of range", `{"mode":"fixed","lat":91,"lng":114.17}`, http.StatusBadRequest, "VALIDATION_FAILED", models.LocationDefault},
		{"unknown mode", `{"mode":"ip"}`, http.StatusBadRequest, "VALIDATION_FAILED", models.LocationDefault},
		{"unknown field", `{"mode":"gps","accuracy":5}`, http.StatusBadRequest, "INVALID_BODY", models.LocationDefault},
		{"not json", `mode=gps`, http.StatusBadRequest, "INVALID_BODY", models.LocationDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			w := env.do("PUT", "/settings/location", tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body)
			}
			if tt.wantErr != "" {
				if got := decodeError(t, w.Body.Bytes()); got != tt.wantErr {
					t.Errorf("error code = %q, want %q", got, tt.wantErr)
				}
			}
			if got := env.settings.Location().Mode; got != tt.wantMode {
				t.Errorf("Location().Mode = %q, want %q", got, tt.wantMode)
			}
		})
	}
}

func TestHandler_PutLocation_StoreFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.err = errors.New("database is locked")

	w := env.do("PUT", "/settings/location", `{"mode":"gps"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if got := decodeError(t, w.Body.Bytes()); got != "SETTINGS_UNAVAILABLE" {
		t.Errorf("error code = %q, want SETTINGS_UNAVAILABLE", got)
	}
}

func TestHandler_PutGPSFix(t *testing.T) {
	env := newTestEnv(t, nil)
	var locationChanges int
	env.settings.OnLocationChange(func(models.LocationPreference) { locationChanges++ })

	w := env.do("PUT", "/settings/gps-fix", `{"lat":22.3,"lng":114.2}`)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", w.Code, w.Body)
	}
	fix := env.settings.Snapshot().GPSFix
	if fix == nil || fix.Lat != 22.3 || fix.Lng != 114.2 {
		t.Errorf("GPSFix = %+v, want 22.3,114.2", fix)
	}
	if locationChanges != 0 {
		t.Errorf("gps fix fired %d location hooks, want 0", locationChanges)
	}

	if w := env.do("PUT", "/settings/gps-fix", `{"lat":22.3}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing lng status = %d, want 400", w.Code)
	}
}

func TestHandler_PutRefreshRate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMs   int64
	}{
		{"one hour", `{"refreshRateMs":3600000}`, http.StatusOK, 3600000},
		{"minimum", `{"refreshRateMs":60000}`, http.StatusOK, 60000},
		{"below minimum", `{"refreshRateMs":59999}`, http.StatusBadRequest, 1800000},
		{"missing", `{}`, http.StatusBadRequest, 1800000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			w := env.do("PUT", "/settings/refresh-rate", tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body)
			}
			if got := env.settings.RefreshRate().Milliseconds(); got != tt.wantMs {
				t.Errorf("RefreshRate() = %dms, want %dms", got, tt.wantMs)
			}
		})
	}
}
