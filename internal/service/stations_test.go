package service

import (
	"math"
	"testing"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
)

func TestDistanceKm(t *testing.T) {
	if d := distanceKm(22.3, 114.17, 22.3, 114.17); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}
	// Observatory to Chek Lap Kok is roughly 26 km.
	d := distanceKm(22.3019, 114.1742, 22.3094, 113.9219)
	if math.Abs(d-26) > 1.5 {
		t.Errorf("Observatory to Chek Lap Kok = %.1f km, want about 26", d)
	}
}

func TestNearestStation(t *testing.T) {
	tests := []struct {
		name string
		loc  models.Location
		want string
	}{
		{"tuen mun", models.Location{Lat: 22.39, Lng: 113.97}, "Tuen Mun"},
		{"airport", models.Location{Lat: 22.31, Lng: 113.92}, "Chek Lap Kok"},
		{"stanley", models.Location{Lat: 22.215, Lng: 114.22}, "Stanley"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, dist := nearestStation(temperatureStations, tt.loc)
			if st.NameEN != tt.want {
				t.Errorf("nearestStation() = %s, want %s", st.NameEN, tt.want)
			}
			if dist > 2 {
				t.Errorf("distance = %.2f km, want < 2", dist)
			}
		})
	}
}

func TestNearestStation_FarAway(t *testing.T) {
	_, dist := nearestStation(temperatureStations, models.Location{Lat: 51.5, Lng: -0.12})
	if dist <= maxStationDistanceKm {
		t.Errorf("distance from London = %.0f km, want > %v", dist, maxStationDistanceKm)
	}
}

func TestNearestStation_Tables(t *testing.T) {
	tests := []struct {
		name  string
		list  []Station
		loc   models.Location
		check func(Station) bool
	}{
		{"forecast point for sha tin", forecastStations, models.Location{Lat: 22.40, Lng: 114.21},
			func(s Station) bool { return s.Code == "SHA" }},
		{"forecast point for observatory", forecastStations, models.DefaultLocation,
			func(s Station) bool { return s.Code == "HKO" }},
		{"wind station for kai tak", windStations, models.Location{Lat: 22.305, Lng: 114.215},
			func(s Station) bool { return s.NameEN == "Kai Tak" }},
		{"humidity station for peng chau", humidityStations, models.Location{Lat: 22.29, Lng: 114.04},
			func(s Station) bool { return s.NameEN == "Peng Chau" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if st, _ := nearestStation(tt.list, tt.loc); !tt.check(st) {
				t.Errorf("nearestStation() = %+v", st)
			}
		})
	}
}

func TestStationTables(t *testing.T) {
	for name, list := range map[string][]Station{
		"temperature": temperatureStations,
		"humidity":    humidityStations,
		"wind":        windStations,
		"forecast":    forecastStations,
	} {
		if len(list) == 0 {
			t.Errorf("%s stations empty", name)
		}
		for _, s := range list {
			if name == "forecast" && !validForecastCode(s.Code) {
				t.Errorf("forecast station code %q invalid", s.Code)
			}
			if name != "forecast" && (s.NameEN == "" || s.NameZH == "") {
				t.Errorf("%s station %+v missing a name", name, s)
			}
		}
	}
}

// validForecastCode mirrors the client's station code check.
func validForecastCode(code string) bool {
	if len(code) < 2 || len(code) > 4 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func TestStationName(t *testing.T) {
	if observatory.Name(models.LanguageChinese) != "香港天文台" || observatory.Name(models.LanguageEnglish) != "Hong Kong Observatory" {
		t.Error("unexpected observatory names")
	}
	if territoryLabel(models.LanguageChinese) != "香港" {
		t.Error("unexpected Chinese territory label")
	}
	if csvObservatory.Name(models.LanguageChinese) != "天文台" {
		t.Error("unexpected regional observatory name")
	}
}
