package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/cache"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/client"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/observability"
)

// ErrFetchFailed wraps every failure of a slice fetch: transport, upstream
// status or an unparseable document.
var ErrFetchFailed = errors.New("fetch failed")

// WeatherService implements the three slice fetches on top of the HKO
// client, with a cache-aside layer for raw documents.
type WeatherService struct {
	fetcher    client.Fetcher
	cache      cache.Cache // nil disables caching
	ttl        time.Duration
	docTimeout time.Duration
	coalescer  *requestCoalescer
	now        func() time.Time

	// mu guards epoch. Cache writes hold it shared so Purge never interleaves
	// with a write from an older epoch.
	mu    sync.RWMutex
	epoch uint64

	keysMu sync.Mutex
	keys   map[string]struct{} // cache keys this process has read or written
}

// NewWeatherService creates a WeatherService. ttl is how long raw documents
// stay in the cache; docTimeout bounds a single shared document fetch.
func NewWeatherService(fetcher client.Fetcher, c cache.Cache, ttl, docTimeout time.Duration) *WeatherService {
	if docTimeout <= 0 {
		docTimeout = 30 * time.Second
	}
	return &WeatherService{
		fetcher:    fetcher,
		cache:      c,
		ttl:        ttl,
		docTimeout: docTimeout,
		coalescer:  newRequestCoalescer(),
		now:        time.Now,
		keys:       make(map[string]struct{}),
	}
}

// loggerFromContext extracts a zap.Logger from context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value("logger").(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// CurrentWeather fetches conditions near loc in lang. The documents are
// fetched concurrently; any failure fails the whole slice.
func (s *WeatherService) CurrentWeather(ctx context.Context, loc models.Location, lang models.Language) (models.CurrentWeather, error) {
	now := s.now()
	year := now.In(hongKongTime).Year()
	fc, _ := nearestStation(forecastStations, loc)

	docs, err := s.documents(ctx,
		s.weatherDoc(client.DataTypeCurrent, lang),
		s.weatherDoc(client.DataTypeForecast, lang),
		s.stationForecastDoc(fc.Code),
		s.regionalDoc(client.DatasetHumidity, lang),
		s.regionalDoc(client.DatasetWind, lang),
		s.astronomicalDoc(client.DataTypeSunTimes, year),
		s.astronomicalDoc(client.DataTypeMoonTimes, year),
	)
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: conditions: %w", ErrFetchFailed, err)
	}
	cw, err := parseCurrentWeather(conditionDocs{
		current:         docs[0],
		forecast:        docs[1],
		stationForecast: docs[2],
		humidity:        docs[3],
		wind:            docs[4],
		sun:             docs[5],
		moon:            docs[6],
	}, loc, lang, now)
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return cw, nil
}

// ActiveWarnings fetches the warnings in force. Warnings are territory-wide;
// loc is accepted so every fetch has the same shape.
func (s *WeatherService) ActiveWarnings(ctx context.Context, loc models.Location, lang models.Language) ([]models.Warning, error) {
	doc, err := s.document(ctx, s.weatherDoc(client.DataTypeWarnings, lang))
	if err != nil {
		return nil, fmt.Errorf("%w: warnings: %w", ErrFetchFailed, err)
	}
	warnings, err := parseWarnings(doc, loggerFromContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return warnings, nil
}

// WeatherTips fetches the special weather tips currently issued.
func (s *WeatherService) WeatherTips(ctx context.Context, loc models.Location, lang models.Language) ([]models.Tip, error) {
	doc, err := s.document(ctx, s.weatherDoc(client.DataTypeTips, lang))
	if err != nil {
		return nil, fmt.Errorf("%w: tips: %w", ErrFetchFailed, err)
	}
	tips, err := parseTips(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return tips, nil
}

// Purge drops every cached document this process knows of, so the next
// fetch of each goes upstream. Document fetches already running when Purge
// is called no longer populate the cache.
func (s *WeatherService) Purge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.cache == nil {
		return nil
	}

	s.keysMu.Lock()
	keys := s.keys
	s.keys = make(map[string]struct{})
	s.keysMu.Unlock()

	var errs []error
	for key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("delete", categorizeCacheError(err)).Inc()
			s.trackKey(key)
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// docRequest names one upstream document: its cache key, metric label and
// how to fetch it.
type docRequest struct {
	key   string
	label string
	fetch func(ctx context.Context) ([]byte, error)
}

func (s *WeatherService) weatherDoc(dataType string, lang models.Language) docRequest {
	code := lang.APICode()
	return docRequest{
		key:   cache.Key(dataType, code),
		label: dataType,
		fetch: func(ctx context.Context) ([]byte, error) { return s.fetcher.Fetch(ctx, dataType, code) },
	}
}

func (s *WeatherService) regionalDoc(dataset string, lang models.Language) docRequest {
	code := lang.APICode()
	return docRequest{
		key:   cache.Key(dataset, code),
		label: dataset,
		fetch: func(ctx context.Context) ([]byte, error) { return s.fetcher.FetchRegional(ctx, dataset, code) },
	}
}

func (s *WeatherService) astronomicalDoc(dataType string, year int) docRequest {
	return docRequest{
		key:   cache.Key(dataType, strconv.Itoa(year)),
		label: dataType,
		fetch: func(ctx context.Context) ([]byte, error) { return s.fetcher.FetchAstronomical(ctx, dataType, year) },
	}
}

func (s *WeatherService) stationForecastDoc(station string) docRequest {
	return docRequest{
		key:   cache.Key(client.DataTypeStationForecast, station),
		label: client.DataTypeStationForecast,
		fetch: func(ctx context.Context) ([]byte, error) { return s.fetcher.FetchStationForecast(ctx, station) },
	}
}

// documents fetches reqs concurrently and returns the bodies in order.
func (s *WeatherService) documents(ctx context.Context, reqs ...docRequest) ([][]byte, error) {
	bodies := make([][]byte, len(reqs))
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		i, req := i, req
		wg.Add(1)
		go func() {
			defer wg.Done()
			bodies[i], errs[i] = s.document(ctx, req)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", reqs[i].label, err)
		}
	}
	return bodies, nil
}

// document returns the raw document for req, from cache when present.
// Concurrent misses for the same document share one upstream call.
func (s *WeatherService) document(ctx context.Context, req docRequest) ([]byte, error) {
	logger := loggerFromContext(ctx)

	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	if s.cache != nil {
		body, ok, err := s.cache.Get(ctx, req.key)
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
			logger.Warn("cache get failed", zap.String("key", req.key), zap.Error(err))
		case ok:
			observability.CacheLookupsTotal.WithLabelValues(req.label, "hit").Inc()
			logger.Debug("cache hit", zap.String("key", req.key))
			s.trackKey(req.key)
			return body, nil
		default:
			observability.CacheLookupsTotal.WithLabelValues(req.label, "miss").Inc()
		}
	}

	// Calls from different epochs never share a fetch.
	flightKey := req.key + "#" + strconv.FormatUint(epoch, 10)
	body, shared, err := s.coalescer.Do(ctx, flightKey, func() ([]byte, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.docTimeout)
		defer cancel()
		body, err := req.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		s.store(fetchCtx, req.key, body, epoch, logger)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("joined in-flight document fetch", zap.String("key", req.key))
	}
	return body, nil
}

// store writes body to the cache unless a Purge happened since epoch.
func (s *WeatherService) store(ctx context.Context, key string, body []byte, epoch uint64, logger *zap.Logger) {
	if s.cache == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.epoch != epoch {
		logger.Debug("skipping cache write after purge", zap.String("key", key))
		return
	}
	if err := s.cache.Set(ctx, key, body, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.trackKey(key)
}

func (s *WeatherService) trackKey(key string) {
	s.keysMu.Lock()
	s.keys[key] = struct{}{}
	s.keysMu.Unlock()
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") || strings.Contains(errStr, "no servers") {
		return "connection"
	}
	return "unknown"
}
