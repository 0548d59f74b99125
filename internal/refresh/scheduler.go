package refresh

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Refresher is the part of Coordinator the scheduler drives.
type Refresher interface {
	MaybeRefresh(now time.Time) int
}

// Scheduler calls MaybeRefresh on a fixed interval, standing in for the
// periodic update requests tiles and complications receive.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	interval time.Duration
	started  bool
}

// NewScheduler creates a Scheduler that is not yet running.
func NewScheduler(refresher Refresher, interval time.Duration, logger *zap.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
		interval:  interval,
	}
}

// Start schedules the job and starts the scheduler. The first run happens
// immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.scheduleLocked(s.interval); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.started = true
	return nil
}

// Reschedule replaces the job with one running every interval.
func (s *Scheduler) Reschedule(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval == s.interval {
		return nil
	}
	s.scheduler.Clear()
	if err := s.scheduleLocked(interval); err != nil {
		return err
	}
	s.logger.Info("refresh schedule changed", zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) scheduleLocked(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %v", interval)
	}
	_, err := s.scheduler.Every(interval).Do(s.run)
	if err != nil {
		return fmt.Errorf("scheduling refresh job: %w", err)
	}
	s.interval = interval
	return nil
}

func (s *Scheduler) run() {
	started := s.refresher.MaybeRefresh(s.now())
	if started > 0 {
		s.logger.Debug("scheduled refresh started fetches", zap.Int("started", started))
	}
}

// Interval returns the current schedule interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Stop stops the scheduler and cancels future runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.scheduler.Stop()
		s.started = false
	}
}
