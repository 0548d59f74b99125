//go:build integration
// +build integration

package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// TestHKOClient_Fetch_Integration calls the live HKO open data API.
func TestHKOClient_Fetch_Integration(t *testing.T) {
	c, err := NewHKOClient(Options{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewHKOClient() error = %v", err)
	}

	for _, dataType := range []string{DataTypeCurrent, DataTypeForecast, DataTypeWarnings, DataTypeTips} {
		for _, lang := range []string{"en", "tc"} {
			t.Run(dataType+"/"+lang, func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				body, err := c.Fetch(ctx, dataType, lang)
				if err != nil {
					t.Fatalf("Fetch() error = %v", err)
				}
				var doc map[string]any
				if err := json.Unmarshal(body, &doc); err != nil {
					t.Errorf("document is not a JSON object: %v", err)
				}
			})
		}
	}
}

// TestHKOClient_StationDocuments_Integration calls the live regional, astronomical and OCF endpoints.
func TestHKOClient_StationDocuments_Integration(t *testing.T) {
	c, err := NewHKOClient(Options{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewHKOClient() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := c.FetchRegional(ctx, DatasetHumidity, "en"); err != nil {
		t.Errorf("FetchRegional(humidity) error = %v", err)
	}
	if _, err := c.FetchRegional(ctx, DatasetWind, "tc"); err != nil {
		t.Errorf("FetchRegional(wind) error = %v", err)
	}
	if _, err := c.FetchAstronomical(ctx, DataTypeSunTimes, time.Now().Year()); err != nil {
		t.Errorf("FetchAstronomical(SRS) error = %v", err)
	}
	body, err := c.FetchStationForecast(ctx, "HKO")
	if err != nil {
		t.Fatalf("FetchStationForecast(HKO) error = %v", err)
	}
	var doc struct {
		DailyForecast []map[string]any `json:"DailyForecast"`
	}
	if err := json.Unmarshal(body, &doc); err != nil || len(doc.DailyForecast) == 0 {
		t.Errorf("OCF document has no DailyForecast (err=%v)", err)
	}
}
