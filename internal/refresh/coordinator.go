package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/client"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/observability"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/state"
)

// Invalidation reasons, used as log fields and metric labels.
const (
	ReasonManualReload    = "manual_reload"
	ReasonLanguageChanged = "language_changed"
	ReasonLocationChanged = "location_changed"
	ReasonRefreshAll      = "refresh_all"
)

// Provider performs the three slice fetches.
type Provider interface {
	CurrentWeather(ctx context.Context, loc models.Location, lang models.Language) (models.CurrentWeather, error)
	ActiveWarnings(ctx context.Context, loc models.Location, lang models.Language) ([]models.Warning, error)
	WeatherTips(ctx context.Context, loc models.Location, lang models.Language) ([]models.Tip, error)
}

// DocumentPurger drops cached upstream documents. A Provider that also
// implements it is purged on manual reload and refresh-all.
type DocumentPurger interface {
	Purge(ctx context.Context) error
}

// SettingsReader supplies the language and location a fetch runs with.
type SettingsReader interface {
	Language() models.Language
	ResolveLocation(ctx context.Context) models.Location
}

// Options configures a Coordinator. Zero values get defaults.
type Options struct {
	FetchTimeout time.Duration // bound on a single slice fetch
	Workers      int           // concurrent fetches across all slices
}

// task is a running slice fetch. Cancelling it makes the fetch return early;
// its claim is then abandoned.
type task struct {
	id     string
	cancel context.CancelFunc
}

// Coordinator refreshes the container's slices when they are due. Fetches run
// in the background; callers never wait on the network.
type Coordinator struct {
	container *state.Container
	provider  Provider
	purger    DocumentPurger // nil when provider keeps no cache
	settings  SettingsReader
	logger    *zap.Logger
	timeout   time.Duration
	sem       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	tasks  map[string]*task // by slice name
	wg     sync.WaitGroup
}

// NewCoordinator creates a Coordinator over container.
func NewCoordinator(container *state.Container, provider Provider, settings SettingsReader, logger *zap.Logger, opts Options) *Coordinator {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	purger, _ := provider.(DocumentPurger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		container: container,
		provider:  provider,
		purger:    purger,
		settings:  settings,
		logger:    logger,
		timeout:   opts.FetchTimeout,
		sem:       make(chan struct{}, opts.Workers),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]*task),
	}
}

// MaybeRefresh starts a fetch for every slice that is due at now and not
// already being fetched, and returns how many it started. It never blocks on
// a fetch. A successful fetch is published with lastUpdated=now.
func (c *Coordinator) MaybeRefresh(now time.Time) int {
	started := 0
	if startFetch(c, c.container.Conditions, now, c.provider.CurrentWeather) {
		started++
	}
	if startFetch(c, c.container.Warnings, now, c.provider.ActiveWarnings) {
		started++
	}
	if startFetch(c, c.container.Tips, now, c.provider.WeatherTips) {
		started++
	}
	return started
}

// InvalidateAll clears every slice so the next MaybeRefresh fetches all of
// them. Fetches already running are cancelled and their results discarded.
// A manual reload or refresh-all also purges cached documents, so the next
// fetch reaches HKO.
func (c *Coordinator) InvalidateAll(reason string) {
	if c.purger != nil && (reason == ReasonManualReload || reason == ReasonRefreshAll) {
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		if err := c.purger.Purge(ctx); err != nil {
			c.logger.Warn("document cache purge failed", zap.String("reason", reason), zap.Error(err))
		}
		cancel()
	}

	c.mu.Lock()
	c.container.InvalidateAll()
	for _, t := range c.tasks {
		t.cancel()
	}
	c.mu.Unlock()

	observability.SliceInvalidationsTotal.WithLabelValues(reason).Inc()
	c.logger.Info("slices invalidated", zap.String("reason", reason))
}

// Wait blocks until no fetch is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels running fetches and waits for them. MaybeRefresh starts
// nothing after Close.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// InFlight returns the names of slices with a running fetch.
func (c *Coordinator) InFlight() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tasks))
	for name := range c.tasks {
		names = append(names, name)
	}
	return names
}

// RegisterMetrics exposes per-slice age gauges.
func (c *Coordinator) RegisterMetrics() {
	registerAge(c.container.Conditions)
	registerAge(c.container.Warnings)
	registerAge(c.container.Tips)
}

func registerAge[T any](s *state.Slice[T]) {
	observability.RegisterSliceAgeGauge(s.Name(), func() float64 {
		age := s.Age(time.Now())
		if age < 0 {
			return -1
		}
		return age.Seconds()
	})
}

type fetchFunc[T any] func(ctx context.Context, loc models.Location, lang models.Language) (T, error)

// startFetch claims s and runs fetch in the background. It is a function
// rather than a method because methods cannot have type parameters.
func startFetch[T any](c *Coordinator, s *state.Slice[T], now time.Time, fetch fetchFunc[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	claim, res := s.TryBegin(now)
	if res != state.BeginStarted {
		observability.SliceRefreshSkippedTotal.WithLabelValues(s.Name(), res.String()).Inc()
		return false
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	t := &task{id: uuid.New().String(), cancel: cancel}
	c.tasks[s.Name()] = t
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		defer cancel()
		runFetch(c, ctx, t, s, claim, now, fetch)

		c.mu.Lock()
		if c.tasks[s.Name()] == t {
			delete(c.tasks, s.Name())
		}
		c.mu.Unlock()
	}()
	return true
}

func runFetch[T any](c *Coordinator, ctx context.Context, t *task, s *state.Slice[T], claim state.Claim, now time.Time, fetch fetchFunc[T]) {
	start := time.Now()
	logger := c.logger.With(zap.String("slice", s.Name()), zap.String("correlation_id", t.id))
	ctx = context.WithValue(ctx, "correlation_id", t.id)
	ctx = context.WithValue(ctx, "logger", logger)

	fail := func(err error, duration time.Duration) {
		s.Abandon(claim)
		if errors.Is(err, context.Canceled) && c.ctx.Err() == nil {
			observability.SliceRefreshTotal.WithLabelValues(s.Name(), "discarded").Inc()
			logger.Info("fetch cancelled by invalidation", zap.Duration("duration", duration))
			return
		}
		observability.SliceRefreshTotal.WithLabelValues(s.Name(), "failure").Inc()
		logger.Warn("slice fetch failed",
			zap.Error(err),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Duration("duration", duration),
		)
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		fail(ctx.Err(), time.Since(start))
		return
	}

	loc := c.settings.ResolveLocation(ctx)
	lang := c.settings.Language()

	value, err := fetch(ctx, loc, lang)
	duration := time.Since(start)
	observability.SliceRefreshDuration.WithLabelValues(s.Name()).Observe(duration.Seconds())

	if err != nil {
		fail(err, duration)
		return
	}

	if !s.Publish(claim, value, now) {
		observability.SliceRefreshTotal.WithLabelValues(s.Name(), "discarded").Inc()
		logger.Info("fetch result discarded after invalidation", zap.Duration("duration", duration))
		return
	}
	observability.SliceRefreshTotal.WithLabelValues(s.Name(), "success").Inc()
	logger.Debug("slice refreshed",
		zap.String("language", string(lang)),
		zap.Bool("fallbackLocation", loc.Fallback),
		zap.Duration("duration", duration),
	)
}
