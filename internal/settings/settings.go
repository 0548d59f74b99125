package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
)

const (
	keyLanguage    = "language"
	keyLocation    = "location"
	keyRefreshRate = "refresh_rate_ms"
)

const (
	DefaultLanguage    = models.LanguageChinese
	DefaultRefreshRate = 30 * time.Minute
	MinRefreshRate     = time.Minute
)

var (
	ErrInvalidLocation    = errors.New("invalid location")
	ErrInvalidRefreshRate = errors.New("invalid refresh rate")
)

// Store is the persistence used by Service.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Snapshot is the full set of user preferences.
type Snapshot struct {
	Language    models.Language           `json:"language"`
	Location    models.LocationPreference `json:"location"`
	RefreshRate time.Duration             `json:"-"`
	GPSFix      *models.Location          `json:"gpsFix,omitempty"`
}

// Service owns the user preferences and resolves the location used for
// fetches. Change hooks run synchronously after the new value is stored.
type Service struct {
	store  Store
	logger *zap.Logger

	mu          sync.RWMutex
	language    models.Language
	location    models.LocationPreference
	refreshRate time.Duration
	gpsFix      *models.Location

	hooksMu       sync.Mutex
	onLanguage    []func(models.Language)
	onLocation    []func(models.LocationPreference)
	onRefreshRate []func(time.Duration)
}

// NewService loads stored preferences, falling back to defaults for
// anything unset or unreadable.
func NewService(ctx context.Context, store Store, logger *zap.Logger) (*Service, error) {
	s := &Service{
		store:       store,
		logger:      logger,
		language:    DefaultLanguage,
		location:    models.LocationPreference{Mode: models.LocationDefault},
		refreshRate: DefaultRefreshRate,
	}

	if v, ok, err := store.Get(ctx, keyLanguage); err != nil {
		return nil, err
	} else if ok {
		s.language = models.ParseLanguage(v)
	}

	if v, ok, err := store.Get(ctx, keyLocation); err != nil {
		return nil, err
	} else if ok {
		var pref models.LocationPreference
		if err := json.Unmarshal([]byte(v), &pref); err != nil || validatePreference(pref) != nil {
			logger.Warn("ignoring stored location", zap.String("value", v))
		} else {
			s.location = pref
		}
	}

	if v, ok, err := store.Get(ctx, keyRefreshRate); err != nil {
		return nil, err
	} else if ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if rate := time.Duration(ms) * time.Millisecond; err != nil || rate < MinRefreshRate {
			logger.Warn("ignoring stored refresh rate", zap.String("value", v))
		} else {
			s.refreshRate = rate
		}
	}

	return s, nil
}

// OnLanguageChange registers fn to run after the language changes.
func (s *Service) OnLanguageChange(fn func(models.Language)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onLanguage = append(s.onLanguage, fn)
}

// OnLocationChange registers fn to run after the location preference changes.
func (s *Service) OnLocationChange(fn func(models.LocationPreference)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onLocation = append(s.onLocation, fn)
}

// OnRefreshRateChange registers fn to run after the refresh rate changes.
func (s *Service) OnRefreshRateChange(fn func(time.Duration)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onRefreshRate = append(s.onRefreshRate, fn)
}

func (s *Service) Language() models.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// SetLanguage stores lang. Hooks run only when the value actually changes.
func (s *Service) SetLanguage(ctx context.Context, lang models.Language) error {
	lang = models.ParseLanguage(string(lang))
	s.mu.Lock()
	if s.language == lang {
		s.mu.Unlock()
		return nil
	}
	if err := s.store.Set(ctx, keyLanguage, string(lang)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.language = lang
	s.mu.Unlock()

	s.logger.Info("language changed", zap.String("language", string(lang)))
	s.hooksMu.Lock()
	hooks := append([]func(models.Language){}, s.onLanguage...)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(lang)
	}
	return nil
}

func (s *Service) Location() models.LocationPreference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

// SetFixedLocation pins the weather location to lat/lng.
func (s *Service) SetFixedLocation(ctx context.Context, lat, lng float64) error {
	return s.setLocation(ctx, models.LocationPreference{Mode: models.LocationFixed, Lat: lat, Lng: lng})
}

// SetGPS makes the location follow fixes reported through ReportGPSFix.
func (s *Service) SetGPS(ctx context.Context) error {
	return s.setLocation(ctx, models.LocationPreference{Mode: models.LocationGPS})
}

// ClearLocation reverts to the default location.
func (s *Service) ClearLocation(ctx context.Context) error {
	return s.setLocation(ctx, models.LocationPreference{Mode: models.LocationDefault})
}

func (s *Service) setLocation(ctx context.Context, pref models.LocationPreference) error {
	if err := validatePreference(pref); err != nil {
		return err
	}
	s.mu.Lock()
	if s.location == pref {
		s.mu.Unlock()
		return nil
	}
	var err error
	if pref.Mode == models.LocationDefault {
		err = s.store.Delete(ctx, keyLocation)
	} else {
		raw, _ := json.Marshal(pref)
		err = s.store.Set(ctx, keyLocation, string(raw))
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.location = pref
	s.mu.Unlock()

	s.logger.Info("location preference changed", zap.String("mode", string(pref.Mode)))
	s.hooksMu.Lock()
	hooks := append([]func(models.LocationPreference){}, s.onLocation...)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(pref)
	}
	return nil
}

// ReportGPSFix records the device's latest position. It is kept in memory
// only and picked up by the next fetch; it does not invalidate data.
func (s *Service) ReportGPSFix(lat, lng float64) error {
	if err := validateCoordinates(lat, lng); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpsFix = &models.Location{Lat: lat, Lng: lng}
	return nil
}

func (s *Service) RefreshRate() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshRate
}

// SetRefreshRate stores how often tiles and complications refresh.
func (s *Service) SetRefreshRate(ctx context.Context, rate time.Duration) error {
	if rate < MinRefreshRate {
		return fmt.Errorf("%w: %v is below %v", ErrInvalidRefreshRate, rate, MinRefreshRate)
	}
	s.mu.Lock()
	if s.refreshRate == rate {
		s.mu.Unlock()
		return nil
	}
	if err := s.store.Set(ctx, keyRefreshRate, strconv.FormatInt(rate.Milliseconds(), 10)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.refreshRate = rate
	s.mu.Unlock()

	s.hooksMu.Lock()
	hooks := append([]func(time.Duration){}, s.onRefreshRate...)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(rate)
	}
	return nil
}

// ResolveLocation returns the coordinates to fetch for. GPS mode without a
// fix and the default mode both resolve to the default location with
// Fallback set.
func (s *Service) ResolveLocation(ctx context.Context) models.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.location.Mode {
	case models.LocationFixed:
		return models.Location{Lat: s.location.Lat, Lng: s.location.Lng}
	case models.LocationGPS:
		if s.gpsFix != nil {
			return *s.gpsFix
		}
	}
	loc := models.DefaultLocation
	loc.Fallback = true
	return loc
}

// Snapshot returns every preference at once.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Language:    s.language,
		Location:    s.location,
		RefreshRate: s.refreshRate,
	}
	if s.gpsFix != nil {
		fix := *s.gpsFix
		snap.GPSFix = &fix
	}
	return snap
}

func validatePreference(p models.LocationPreference) error {
	switch p.Mode {
	case models.LocationDefault, models.LocationGPS:
		return nil
	case models.LocationFixed:
		return validateCoordinates(p.Lat, p.Lng)
	}
	return fmt.Errorf("%w: unknown mode %q", ErrInvalidLocation, p.Mode)
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: %v,%v out of range", ErrInvalidLocation, lat, lng)
	}
	return nil
}
