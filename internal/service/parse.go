package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
)

var errMalformed = errors.New("malformed document")

var hongKongTime = time.FixedZone("HKT", 8*60*60)

type placeValue struct {
	Place string  `json:"place"`
	Value float64 `json:"value"`
}

type rhrreadDoc struct {
	Temperature struct {
		Data []placeValue `json:"data"`
	} `json:"temperature"`
	Humidity struct {
		Data []placeValue `json:"data"`
	} `json:"humidity"`
	// UVIndex is an object during the day and "" at night.
	UVIndex    json.RawMessage `json:"uvindex"`
	Icon       []int           `json:"icon"`
	UpdateTime string          `json:"updateTime"`
}

type valueField struct {
	Value float64 `json:"value"`
}

type fndDay struct {
	ForecastDate    string     `json:"forecastDate"`
	ForecastMaxtemp valueField `json:"forecastMaxtemp"`
	ForecastMintemp valueField `json:"forecastMintemp"`
	ForecastMaxrh   valueField `json:"forecastMaxrh"`
	ForecastMinrh   valueField `json:"forecastMinrh"`
	ForecastIcon    int        `json:"ForecastIcon"`
}

type fndDoc struct {
	WeatherForecast []fndDay `json:"weatherForecast"`
}

// ocfDoc is the OCF forecast for one station.
type ocfDoc struct {
	DailyForecast []struct {
		ForecastDate         string `json:"ForecastDate"`
		ForecastChanceOfRain string `json:"ForecastChanceOfRain"` // e.g. "20%"
	} `json:"DailyForecast"`
	HourlyWeatherForecast []struct {
		ForecastHour             string   `json:"ForecastHour"` // yyyyMMddHH, Hong Kong time
		ForecastTemperature      *float64 `json:"ForecastTemperature"`
		ForecastRelativeHumidity *float64 `json:"ForecastRelativeHumidity"`
		ForecastWindDirection    *float64 `json:"ForecastWindDirection"`
		ForecastWindSpeed        *float64 `json:"ForecastWindSpeed"`
		ForecastWeather          *int     `json:"ForecastWeather"`
	} `json:"HourlyWeatherForecast"`
}

type warningInfoDoc struct {
	Details []struct {
		WarningStatementCode string   `json:"warningStatementCode"`
		Subtype              string   `json:"subtype"`
		Contents             []string `json:"contents"`
	} `json:"details"`
}

type swtDoc struct {
	SWT []struct {
		Desc       string `json:"desc"`
		UpdateTime string `json:"updateTime"`
	} `json:"swt"`
}

// conditionDocs are the raw documents the conditions slice is built from.
type conditionDocs struct {
	current         []byte // rhrread
	forecast        []byte // fnd
	stationForecast []byte // OCF, nearest forecast station
	humidity        []byte // regional CSV
	wind            []byte // regional CSV
	sun             []byte // SRS CSV, current year
	moon            []byte // MRS CSV, current year
}

// parseCurrentWeather combines the condition documents into the conditions slice.
func parseCurrentWeather(docs conditionDocs, loc models.Location, lang models.Language, now time.Time) (models.CurrentWeather, error) {
	var cur rhrreadDoc
	if err := json.Unmarshal(docs.current, &cur); err != nil {
		return models.CurrentWeather{}, fmt.Errorf("parse rhrread: %w", err)
	}
	var fc fndDoc
	if err := json.Unmarshal(docs.forecast, &fc); err != nil {
		return models.CurrentWeather{}, fmt.Errorf("parse fnd: %w", err)
	}
	var ocf ocfDoc
	if err := json.Unmarshal(docs.stationForecast, &ocf); err != nil {
		return models.CurrentWeather{}, fmt.Errorf("parse station forecast: %w", err)
	}
	if len(cur.Temperature.Data) == 0 {
		return models.CurrentWeather{}, fmt.Errorf("%w: rhrread has no temperature readings", errMalformed)
	}
	if len(cur.Humidity.Data) == 0 {
		return models.CurrentWeather{}, fmt.Errorf("%w: rhrread has no humidity readings", errMalformed)
	}
	if len(fc.WeatherForecast) == 0 {
		return models.CurrentWeather{}, fmt.Errorf("%w: fnd has no forecast days", errMalformed)
	}
	if len(ocf.DailyForecast) == 0 {
		return models.CurrentWeather{}, fmt.Errorf("%w: station forecast has no days", errMalformed)
	}

	station, temp := pickTemperature(cur.Temperature.Data, loc, lang)

	observatoryHumidity := cur.Humidity.Data[0].Value
	if v := lookupPlace(cur.Humidity.Data, observatory.Name(lang)); v != nil {
		observatoryHumidity = *v
	}
	humidity, err := pickHumidity(docs.humidity, loc, lang, observatoryHumidity)
	if err != nil {
		return models.CurrentWeather{}, err
	}
	wind, err := pickWind(docs.wind, loc, lang)
	if err != nil {
		return models.CurrentWeather{}, err
	}

	uv, err := parseUVIndex(cur.UVIndex)
	if err != nil {
		return models.CurrentWeather{}, err
	}

	icon := 0
	if len(cur.Icon) > 0 {
		icon = cur.Icon[0]
	}

	observedAt := now
	if cur.UpdateTime != "" {
		t, err := time.Parse(time.RFC3339, cur.UpdateTime)
		if err != nil {
			return models.CurrentWeather{}, fmt.Errorf("parse rhrread updateTime: %w", err)
		}
		observedAt = t
	}

	chance, err := parsePercent(ocf.DailyForecast[0].ForecastChanceOfRain)
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: station forecast chance of rain: %v", errMalformed, err)
	}
	chanceByDate := make(map[string]float64, len(ocf.DailyForecast))
	for _, d := range ocf.DailyForecast {
		if v, err := parsePercent(d.ForecastChanceOfRain); err == nil {
			chanceByDate[d.ForecastDate] = v
		}
	}

	forecast := make([]models.DailyForecast, 0, len(fc.WeatherForecast))
	for _, d := range fc.WeatherForecast {
		date, err := formatForecastDate(d.ForecastDate)
		if err != nil {
			return models.CurrentWeather{}, err
		}
		dayChance, ok := chanceByDate[d.ForecastDate]
		if !ok {
			dayChance = -1
		}
		forecast = append(forecast, models.DailyForecast{
			Date:                date,
			HighestTemperature:  d.ForecastMaxtemp.Value,
			LowestTemperature:   d.ForecastMintemp.Value,
			MaxRelativeHumidity: d.ForecastMaxrh.Value,
			MinRelativeHumidity: d.ForecastMinrh.Value,
			ChanceOfRain:        dayChance,
			Icon:                d.ForecastIcon,
		})
	}
	first := forecast[0]

	hourly, err := parseHourly(ocf, icon)
	if err != nil {
		return models.CurrentWeather{}, err
	}

	today := now.In(hongKongTime).Format("2006-01-02")
	sun, err := parseAstronomy(docs.sun, today)
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("parse sun times: %w", err)
	}
	moon, err := parseAstronomy(docs.moon, today)
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("parse moon times: %w", err)
	}

	return models.CurrentWeather{
		Date:                today,
		Station:             station,
		Temperature:         temp,
		Humidity:            humidity,
		UVIndex:             uv,
		Icon:                icon,
		Wind:                wind,
		HighestTemperature:  first.HighestTemperature,
		LowestTemperature:   first.LowestTemperature,
		MaxRelativeHumidity: first.MaxRelativeHumidity,
		MinRelativeHumidity: first.MinRelativeHumidity,
		ChanceOfRain:        chance,
		Sun:                 sun,
		Moon:                moon,
		Forecast:            forecast,
		Hourly:              hourly,
		ObservedAt:          observedAt,
	}, nil
}

// pickTemperature returns the display label and reading for loc. The nearest
// station is used when it reports and is within range; otherwise the
// Observatory reading is shown under the territory-wide label.
func pickTemperature(data []placeValue, loc models.Location, lang models.Language) (string, float64) {
	st, dist := nearestStation(temperatureStations, loc)
	if !loc.Fallback && dist <= maxStationDistanceKm {
		if v := lookupPlace(data, st.Name(lang)); v != nil {
			return st.Name(lang), *v
		}
	}
	if v := lookupPlace(data, observatory.Name(lang)); v != nil {
		return territoryLabel(lang), *v
	}
	return territoryLabel(lang), data[0].Value
}

func lookupPlace(data []placeValue, place string) *float64 {
	for i := range data {
		if data[i].Place == place {
			return &data[i].Value
		}
	}
	return nil
}

func parseUVIndex(raw json.RawMessage) (float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == `""` || trimmed == "null" {
		return -1, nil
	}
	var uv struct {
		Data []placeValue `json:"data"`
	}
	if err := json.Unmarshal(raw, &uv); err != nil {
		return 0, fmt.Errorf("parse rhrread uvindex: %w", err)
	}
	if len(uv.Data) == 0 {
		return -1, nil
	}
	return uv.Data[0].Value, nil
}

func formatForecastDate(s string) (string, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return "", fmt.Errorf("parse fnd forecastDate %q: %w", s, err)
	}
	return t.Format("2006-01-02"), nil
}

// parsePercent parses HKO's "NN%" form.
func parsePercent(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseHourly converts the station's hourly forecast. An hour without a
// weather icon repeats the previous hour's, starting from the current icon.
func parseHourly(doc ocfDoc, currentIcon int) ([]models.HourlyForecast, error) {
	out := make([]models.HourlyForecast, 0, len(doc.HourlyWeatherForecast))
	last := currentIcon
	for _, h := range doc.HourlyWeatherForecast {
		at, err := time.ParseInLocation("2006010215", h.ForecastHour, hongKongTime)
		if err != nil {
			return nil, fmt.Errorf("parse station forecast hour %q: %w", h.ForecastHour, err)
		}
		if h.ForecastWeather != nil && *h.ForecastWeather > 0 {
			last = *h.ForecastWeather
		}
		out = append(out, models.HourlyForecast{
			Time:          at,
			Temperature:   h.ForecastTemperature,
			Humidity:      h.ForecastRelativeHumidity,
			WindDirection: h.ForecastWindDirection,
			WindSpeedKmh:  h.ForecastWindSpeed,
			Icon:          last,
		})
	}
	return out, nil
}

// regionalColumns are the header names of the regional weather CSVs.
type regionalColumns struct {
	station       string
	humidity      string
	windDirection string
	windSpeed     string
	gust          string
}

var (
	regionalColumnsEN = regionalColumns{
		station:       "Automatic Weather Station",
		humidity:      "Relative Humidity(percent)",
		windDirection: "10-Minute Mean Wind Direction(Compass points)",
		windSpeed:     "10-Minute Mean Speed(km/hour)",
		gust:          "10-Minute Maximum Gust(km/hour)",
	}
	regionalColumnsZH = regionalColumns{
		station:       "自動氣象站",
		humidity:      "相對濕度（百分比）",
		windDirection: "十分鐘平均風向（方位點）",
		windSpeed:     "十分鐘平均風速（公里/小時）",
		gust:          "十分鐘最高陣風風速（公里/小時）",
	}
)

func regionalColumnsFor(lang models.Language) regionalColumns {
	if lang == models.LanguageEnglish {
		return regionalColumnsEN
	}
	return regionalColumnsZH
}

// pickHumidity reads the nearest humidity station, then the Observatory,
// from the regional CSV. fallback is used when neither has a reading.
func pickHumidity(doc []byte, loc models.Location, lang models.Language, fallback float64) (float64, error) {
	table, err := readCSV(doc, cleanHeader)
	if err != nil {
		return 0, fmt.Errorf("parse humidity: %w", err)
	}
	cols := regionalColumnsFor(lang)
	st, _ := nearestStation(humidityStations, loc)
	for _, name := range []string{st.Name(lang), csvObservatory.Name(lang)} {
		if row := table.lookup(cols.station, name); row != nil {
			if v, ok := parseReading(table.field(row, cols.humidity)); ok {
				return v, nil
			}
		}
	}
	return fallback, nil
}

// pickWind reads the nearest wind station, falling back to Star Ferry when
// it has no direction. Returns nil when neither reports.
func pickWind(doc []byte, loc models.Location, lang models.Language) (*models.Wind, error) {
	table, err := readCSV(doc, cleanHeader)
	if err != nil {
		return nil, fmt.Errorf("parse wind: %w", err)
	}
	cols := regionalColumnsFor(lang)
	nearest, _ := nearestStation(windStations, loc)
	for _, st := range []Station{nearest, starFerry} {
		row := table.lookup(cols.station, st.Name(lang))
		if row == nil {
			continue
		}
		dir := table.field(row, cols.windDirection)
		if dir == "" || dir == "N/A" {
			continue
		}
		speed, ok := parseReading(table.field(row, cols.windSpeed))
		if !ok {
			continue
		}
		gust, ok := parseReading(table.field(row, cols.gust))
		if !ok {
			gust = -1
		}
		return &models.Wind{Station: st.Name(lang), Direction: dir, SpeedKmh: speed, GustKmh: gust}, nil
	}
	return nil, nil
}

// parseReading parses a CSV reading; "N/A" and blanks are not readings.
func parseReading(s string) (float64, bool) {
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseAstronomy returns the rise, transit and set times for date
// (YYYY-MM-DD) from an SRS or MRS table.
func parseAstronomy(doc []byte, date string) (models.Astronomy, error) {
	table, err := readCSV(doc, cleanAstronomy)
	if err != nil {
		return models.Astronomy{}, err
	}
	row := table.lookup("YYYY-MM-DD", date)
	if row == nil {
		return models.Astronomy{}, fmt.Errorf("%w: no row for %s", errMalformed, date)
	}
	var out models.Astronomy
	for _, f := range []struct {
		column string
		dst    *string
	}{{"RISE", &out.Rise}, {"TRAN.", &out.Transit}, {"SET", &out.Set}} {
		v := cleanAstronomy(table.field(row, f.column))
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return models.Astronomy{}, fmt.Errorf("%w: %s %q", errMalformed, f.column, v)
		}
		*f.dst = v
	}
	return out, nil
}

// csvTable is a CSV document keyed by its header row.
type csvTable struct {
	columns map[string]int
	rows    [][]string
	clean   func(string) string
}

func readCSV(doc []byte, clean func(string) string) (csvTable, error) {
	r := csv.NewReader(bytes.NewReader(doc))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return csvTable{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(records) == 0 {
		return csvTable{}, fmt.Errorf("%w: empty csv", errMalformed)
	}
	t := csvTable{columns: make(map[string]int), rows: records[1:], clean: clean}
	for i, h := range records[0] {
		t.columns[clean(h)] = i
	}
	return t, nil
}

// field returns the trimmed value of column in row, or "" when absent.
func (t csvTable) field(row []string, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// lookup returns the first row whose column equals value.
func (t csvTable) lookup(column, value string) []string {
	for _, row := range t.rows {
		if t.clean(t.field(row, column)) == value {
			return row
		}
	}
	return nil
}

func cleanHeader(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
}

// cleanAstronomy keeps only the characters of dates, times and the English
// column names; the tables carry byte order marks and Chinese labels.
func cleanAstronomy(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == ':', r == '-':
			return r
		}
		return -1
	}, s)
}

// parseWarnings returns the active warnings in document order. Signals with
// a subtype (tropical cyclone, rainstorm, fire danger) are keyed by subtype.
// An entry without a code is logged and skipped.
func parseWarnings(doc []byte, logger *zap.Logger) ([]models.Warning, error) {
	var w warningInfoDoc
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, fmt.Errorf("parse warningInfo: %w", err)
	}
	out := make([]models.Warning, 0, len(w.Details))
	for i, d := range w.Details {
		code := d.Subtype
		if code == "" {
			code = d.WarningStatementCode
		}
		if code == "" {
			logger.Warn("skipping warningInfo entry without code", zap.Int("index", i))
			continue
		}
		out = append(out, models.Warning{
			Type:     models.WarningType(code),
			Contents: strings.Join(d.Contents, "\n"),
		})
	}
	return out, nil
}

// parseTips returns the special weather tips. A document without the swt key
// means no tips are in force.
func parseTips(doc []byte) ([]models.Tip, error) {
	var s swtDoc
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("parse swt: %w", err)
	}
	out := make([]models.Tip, 0, len(s.SWT))
	for _, t := range s.SWT {
		issued, err := time.Parse(time.RFC3339, t.UpdateTime)
		if err != nil {
			return nil, fmt.Errorf("parse swt updateTime: %w", err)
		}
		out = append(out, models.Tip{Text: t.Desc, IssuedAt: issued})
	}
	return out, nil
}
