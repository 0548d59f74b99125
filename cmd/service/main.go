package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/cache"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/circuitbreaker"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/client"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/config"
	httphandler "github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/http"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/lifecycle"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/observability"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/refresh"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/service"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/settings"
	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/state"
)

const breakerComponent = "hko_api"

func main() {
	startTime := time.Now()
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	store, err := settings.OpenSQLite(cfg.SettingsDBPath)
	if err != nil {
		logger.Fatal("settings store", zap.Error(err), zap.String("path", cfg.SettingsDBPath))
	}
	prefs, err := settings.NewService(context.Background(), store, logger)
	if err != nil {
		logger.Fatal("settings", zap.Error(err))
	}
	logger.Info("settings loaded",
		zap.String("path", cfg.SettingsDBPath),
		zap.String("language", string(prefs.Language())),
		zap.String("location_mode", string(prefs.Location().Mode)),
		zap.Duration("refresh_rate", prefs.RefreshRate()))

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition", zap.String("component", breakerComponent),
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	hkoClient, err := client.NewHKOClient(client.Options{
		BaseURL:        cfg.HKOBaseURL,
		OpenDataURL:    cfg.HKOOpenDataURL,
		RegionalURL:    cfg.HKORegionalURL,
		OCFURL:         cfg.HKOOCFURL,
		Timeout:        cfg.HKOTimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		RateLimit:      cfg.HKORateLimit,
		RateBurst:      cfg.HKORateBurst,
		Breaker:        breaker,
	})
	if err != nil {
		logger.Fatal("hko client", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err := mc.Ping(); err != nil {
			logger.Warn("memcached not reachable at startup; continuing", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}
	weatherService := service.NewWeatherService(hkoClient, cacheSvc, cfg.CacheTTL, cfg.DocumentTimeout)

	container := state.NewContainer(state.Intervals{
		Conditions: cfg.ConditionsInterval,
		Warnings:   cfg.WarningsInterval,
		Tips:       cfg.TipsInterval,
	})
	coordinator := refresh.NewCoordinator(container, weatherService, prefs, logger, refresh.Options{
		FetchTimeout: cfg.FetchTimeout,
		Workers:      cfg.FetchWorkers,
	})
	coordinator.RegisterMetrics()

	scheduler := refresh.NewScheduler(coordinator, prefs.RefreshRate(), logger)

	prefs.OnLanguageChange(func(models.Language) {
		coordinator.InvalidateAll(refresh.ReasonLanguageChanged)
		coordinator.MaybeRefresh(time.Now())
	})
	prefs.OnLocationChange(func(models.LocationPreference) {
		coordinator.InvalidateAll(refresh.ReasonLocationChanged)
		coordinator.MaybeRefresh(time.Now())
	})
	prefs.OnRefreshRateChange(func(d time.Duration) {
		if err := scheduler.Reschedule(d); err != nil {
			logger.Error("reschedule refresh", zap.Error(err), zap.Duration("interval", d))
		}
	})

	healthConfig := &httphandler.HealthConfig{
		StartTime: startTime,
		StorePing: store.Ping,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}
	if breaker != nil {
		healthConfig.BreakerState = func() string { return breaker.State().String() }
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(container, coordinator, prefs, healthConfig, logger)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	router.HandleFunc("/events", handler.GetEvents).Methods("GET")

	reads := router.NewRoute().Subrouter()
	reads.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	reads.HandleFunc("/weather", handler.GetWeather).Methods("GET")
	reads.HandleFunc("/weather/{slice:current|warnings|tips}", handler.GetSlice).Methods("GET")
	reads.HandleFunc("/complications/chance-of-rain", handler.GetChanceOfRain).Methods("GET")
	reads.HandleFunc("/settings", handler.GetSettings).Methods("GET")

	writes := router.NewRoute().Subrouter()
	writes.Use(httphandler.RateLimitMiddleware(limiter))
	writes.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	writes.HandleFunc("/weather/refresh", handler.PostReload).Methods("POST")
	writes.HandleFunc("/tiles/refresh", handler.PostRefreshTiles).Methods("POST")
	writes.HandleFunc("/settings/language", handler.PutLanguage).Methods("PUT")
	writes.HandleFunc("/settings/location", handler.PutLocation).Methods("PUT")
	writes.HandleFunc("/settings/gps-fix", handler.PutGPSFix).Methods("PUT")
	writes.HandleFunc("/settings/refresh-rate", handler.PutRefreshRate).Methods("PUT")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(handler.CloseStreams)

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	if cfg.ScheduleEnabled {
		if err := scheduler.Start(); err != nil {
			logger.Fatal("refresh scheduler", zap.Error(err))
		}
		logger.Info("refresh scheduler started", zap.Duration("interval", scheduler.Interval()))
	} else {
		coordinator.MaybeRefresh(time.Now())
	}
	lifecycle.SetPhase(lifecycle.Serving)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetPhase(lifecycle.Draining)
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if running := coordinator.InFlight(); len(running) > 0 {
		logger.Info("cancelling slice fetches", zap.Strings("slices", running))
	}
	coordinator.Close()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("settings store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
