package models

import "time"

// CurrentWeather is the conditions slice: the latest station readings near
// the resolved location plus today's forecast ranges, the 9-day forecast, the
// station's hourly forecast and today's sun and moon times.
type CurrentWeather struct {
	Date                string           `json:"date"` // YYYY-MM-DD, Hong Kong time
	Station             string           `json:"station"`
	Temperature         float64          `json:"temperature"`
	Humidity            float64          `json:"humidity"`
	UVIndex             float64          `json:"uvIndex"` // -1 when not reported (night time)
	Icon                int              `json:"icon"`
	Wind                *Wind            `json:"wind"` // nil when no station reports
	HighestTemperature  float64          `json:"highestTemperature"`
	LowestTemperature   float64          `json:"lowestTemperature"`
	MaxRelativeHumidity float64          `json:"maxRelativeHumidity"`
	MinRelativeHumidity float64          `json:"minRelativeHumidity"`
	ChanceOfRain        float64          `json:"chanceOfRain"`
	Sun                 Astronomy        `json:"sun"`
	Moon                Astronomy        `json:"moon"`
	Forecast            []DailyForecast  `json:"forecast"`
	Hourly              []HourlyForecast `json:"hourly"`
	ObservedAt          time.Time        `json:"observedAt"`
}

// Wind is a 10-minute mean wind reading. Gust is -1 when not reported.
type Wind struct {
	Station   string  `json:"station"`
	Direction string  `json:"direction"` // compass point, e.g. "NE"
	SpeedKmh  float64 `json:"speedKmh"`
	GustKmh   float64 `json:"gustKmh"`
}

// Astronomy holds rise, transit and set times as "HH:MM" Hong Kong time.
// The moon does not rise or set every day, so any of them may be empty.
type Astronomy struct {
	Rise    string `json:"rise,omitempty"`
	Transit string `json:"transit,omitempty"`
	Set     string `json:"set,omitempty"`
}

// DailyForecast is one day of the 9-day forecast. ChanceOfRain is -1 when the
// station forecast does not cover the day.
type DailyForecast struct {
	Date                string  `json:"date"`
	HighestTemperature  float64 `json:"highestTemperature"`
	LowestTemperature   float64 `json:"lowestTemperature"`
	MaxRelativeHumidity float64 `json:"maxRelativeHumidity"`
	MinRelativeHumidity float64 `json:"minRelativeHumidity"`
	ChanceOfRain        float64 `json:"chanceOfRain"`
	Icon                int     `json:"icon"`
}

// HourlyForecast is one hour of the nearest station's forecast. Fields HKO
// left out are nil.
type HourlyForecast struct {
	Time          time.Time `json:"time"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Humidity      *float64  `json:"humidity,omitempty"`
	WindDirection *float64  `json:"windDirection,omitempty"` // degrees
	WindSpeedKmh  *float64  `json:"windSpeedKmh,omitempty"`
	Icon          int       `json:"icon"`
}

// WarningType is an HKO warning statement code, e.g. WRAINA or TC8NE.
type WarningType string

// Warning is one active warning signal and its bulletin text. Contents is
// empty when HKO publishes the signal without a bulletin.
type Warning struct {
	Type     WarningType `json:"type"`
	Contents string      `json:"contents,omitempty"`
}

// Tip is a special weather tip and the time HKO issued it.
type Tip struct {
	Text     string    `json:"text"`
	IssuedAt time.Time `json:"issuedAt"`
}
