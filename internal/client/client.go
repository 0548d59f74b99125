package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/circuitbreaker"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/observability"
)

// Default HKO endpoints.
const (
	DefaultBaseURL     = "https://data.weather.gov.hk/weatherAPI/opendata/weather.php"
	DefaultOpenDataURL = "https://data.weather.gov.hk/weatherAPI/opendata/opendata.php"
	DefaultRegionalURL = "https://data.weather.gov.hk/weatherAPI/hko_data/regional-weather"
	DefaultOCFURL      = "https://maps.weather.gov.hk/ocf/dat"
)

// HKO open data document types.
const (
	DataTypeCurrent  = "rhrread"
	DataTypeForecast = "fnd"
	DataTypeWarnings = "warningInfo"
	DataTypeTips     = "swt"

	// Yearly astronomical tables (CSV) from opendata.php.
	DataTypeSunTimes  = "SRS"
	DataTypeMoonTimes = "MRS"
)

// Regional weather CSV datasets, one row per automatic weather station.
const (
	DatasetHumidity = "latest_1min_humidity"
	DatasetWind     = "latest_10min_wind"
)

// DataTypeStationForecast labels OCF station forecast calls in metrics.
const DataTypeStationForecast = "ocf"

const maxBodyBytes = 4 << 20

// Fetcher fetches raw HKO documents.
type Fetcher interface {
	// Fetch returns a weather.php JSON document.
	Fetch(ctx context.Context, dataType, lang string) ([]byte, error)
	// FetchRegional returns a regional weather CSV dataset.
	FetchRegional(ctx context.Context, dataset, lang string) ([]byte, error)
	// FetchAstronomical returns the sun or moon CSV table for year.
	FetchAstronomical(ctx context.Context, dataType string, year int) ([]byte, error)
	// FetchStationForecast returns the OCF JSON forecast for one station.
	FetchStationForecast(ctx context.Context, station string) ([]byte, error)
}

var (
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrBadRequest        = errors.New("bad request")
	ErrTimeout           = errors.New("request timeout")
	ErrNetwork           = errors.New("network error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrCircuitOpen       = circuitbreaker.ErrOpen
)

// Options configures an HKOClient. Zero values get defaults.
type Options struct {
	BaseURL        string
	OpenDataURL    string
	RegionalURL    string
	OCFURL         string
	Timeout        time.Duration // per attempt
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// RateLimit caps outgoing requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	Breaker   *circuitbreaker.CircuitBreaker
	HTTP      *http.Client
}

// HKOClient calls the HKO open data API with retries, client-side rate
// limiting and an optional circuit breaker.
type HKOClient struct {
	baseURL        *url.URL
	openDataURL    *url.URL
	regionalURL    *url.URL
	ocfURL         *url.URL
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	limiter        *rate.Limiter
	breaker        *circuitbreaker.CircuitBreaker
}

func parseEndpoint(raw, fallback string) (*url.URL, error) {
	if raw == "" {
		raw = fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid HKO URL %q", raw)
	}
	return u, nil
}

// NewHKOClient validates opts and returns a client.
func NewHKOClient(opts Options) (*HKOClient, error) {
	base, err := parseEndpoint(opts.BaseURL, DefaultBaseURL)
	if err != nil {
		return nil, err
	}
	openData, err := parseEndpoint(opts.OpenDataURL, DefaultOpenDataURL)
	if err != nil {
		return nil, err
	}
	regional, err := parseEndpoint(opts.RegionalURL, DefaultRegionalURL)
	if err != nil {
		return nil, err
	}
	ocf, err := parseEndpoint(opts.OCFURL, DefaultOCFURL)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 200 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 5 * time.Second
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	c := &HKOClient{
		baseURL:        base,
		openDataURL:    openData,
		regionalURL:    regional,
		ocfURL:         ocf,
		timeout:        opts.Timeout,
		client:         opts.HTTP,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
		breaker:        opts.Breaker,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// ValidDataType reports whether dataType is one of the weather.php documents this client fetches.
func ValidDataType(dataType string) bool {
	switch dataType {
	case DataTypeCurrent, DataTypeForecast, DataTypeWarnings, DataTypeTips:
		return true
	}
	return false
}

func validLang(lang string) bool {
	return lang == "en" || lang == "tc"
}

// request is one upstream GET. label is the metric dataType.
type request struct {
	label string
	url   string
	json  bool
}

// Fetch returns the raw JSON document for dataType in lang ("en" or "tc").
// Retryable failures are retried with exponential backoff; the whole call
// counts as one outcome for the circuit breaker.
func (c *HKOClient) Fetch(ctx context.Context, dataType, lang string) ([]byte, error) {
	if !ValidDataType(dataType) {
		return nil, fmt.Errorf("%w: unknown dataType %q", ErrBadRequest, dataType)
	}
	if !validLang(lang) {
		return nil, fmt.Errorf("%w: unknown lang %q", ErrBadRequest, lang)
	}
	u := *c.baseURL
	q := u.Query()
	q.Set("dataType", dataType)
	q.Set("lang", lang)
	u.RawQuery = q.Encode()
	return c.get(ctx, request{label: dataType, url: u.String(), json: true})
}

// FetchRegional returns the CSV for dataset. The Chinese edition lives at
// "<dataset>_uc.csv".
func (c *HKOClient) FetchRegional(ctx context.Context, dataset, lang string) ([]byte, error) {
	if dataset != DatasetHumidity && dataset != DatasetWind {
		return nil, fmt.Errorf("%w: unknown dataset %q", ErrBadRequest, dataset)
	}
	if !validLang(lang) {
		return nil, fmt.Errorf("%w: unknown lang %q", ErrBadRequest, lang)
	}
	name := dataset
	if lang == "tc" {
		name += "_uc"
	}
	u := c.regionalURL.JoinPath(name + ".csv")
	return c.get(ctx, request{label: dataset, url: u.String()})
}

// FetchAstronomical returns the yearly sunrise/sunset (SRS) or
// moonrise/moonset (MRS) table as CSV.
func (c *HKOClient) FetchAstronomical(ctx context.Context, dataType string, year int) ([]byte, error) {
	if dataType != DataTypeSunTimes && dataType != DataTypeMoonTimes {
		return nil, fmt.Errorf("%w: unknown dataType %q", ErrBadRequest, dataType)
	}
	if year < 2000 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d out of range", ErrBadRequest, year)
	}
	u := *c.openDataURL
	q := u.Query()
	q.Set("dataType", dataType)
	q.Set("year", strconv.Itoa(year))
	q.Set("rformat", "csv")
	u.RawQuery = q.Encode()
	return c.get(ctx, request{label: dataType, url: u.String()})
}

// FetchStationForecast returns the OCF forecast for station. The resource
// has an .xml suffix but the body is JSON.
func (c *HKOClient) FetchStationForecast(ctx context.Context, station string) ([]byte, error) {
	if !validStationCode(station) {
		return nil, fmt.Errorf("%w: invalid station code %q", ErrBadRequest, station)
	}
	u := c.ocfURL.JoinPath(station + ".xml")
	return c.get(ctx, request{label: DataTypeStationForecast, url: u.String(), json: true})
}

func validStationCode(s string) bool {
	if len(s) < 2 || len(s) > 4 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func (c *HKOClient) get(ctx context.Context, req request) ([]byte, error) {
	if c.breaker == nil {
		return c.fetchWithRetry(ctx, req)
	}
	var body []byte
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.fetchWithRetry(ctx, req)
		return err
	})
	return body, err
}

func (c *HKOClient) fetchWithRetry(ctx context.Context, req request) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.HKOAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := c.callAPI(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *HKOClient) callAPI(ctx context.Context, r request) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if r.json {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "text/csv")
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.HKOAPICallsTotal.WithLabelValues(r.label, "error").Inc()
		observability.HKOAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.HKOAPICallsTotal.WithLabelValues(r.label, status).Inc()
	observability.HKOAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if r.json && !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrMalformedResponse, r.label)
	}
	if !r.json && len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformedResponse, r.label)
	}
	return body, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamFailure) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNetwork)
}

func (c *HKOClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d", ErrBadRequest, resp.StatusCode)
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
}

func extractCorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value("correlation_id").(string); ok {
		return v
	}
	return ""
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}
