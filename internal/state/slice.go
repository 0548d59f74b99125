package state

import (
	"sync"
	"time"
)

// Snapshot is a consistent read of a slice. Value and LastUpdated always come
// from the same publish; Present is false until the first successful fetch and
// again after an invalidation. InFlight is read under the same lock.
type Snapshot[T any] struct {
	Value       T
	Present     bool
	LastUpdated time.Time
	InFlight    bool
}

// Claim is the in-flight token handed out by TryBegin. A claim outlives an
// invalidation but can no longer publish.
type Claim struct {
	gen uint64
}

// Slice is one independently aged piece of shared weather data. Events are
// emitted while the lock is held, so subscribers see them in the order the
// state changed. notify must not call back into the slice.
type Slice[T any] struct {
	name     string
	interval time.Duration
	notify   func(Event)

	mu       sync.RWMutex
	snap     Snapshot[T]
	gen      uint64 // bumped by Invalidate
	inFlight bool
}

// NewSlice returns an empty slice. notify may be nil.
func NewSlice[T any](name string, interval time.Duration, notify func(Event)) *Slice[T] {
	return &Slice[T]{name: name, interval: interval, notify: notify}
}

// Name returns the slice name used in events, logs and metric labels.
func (s *Slice[T]) Name() string {
	return s.name
}

// Interval returns the refresh interval.
func (s *Slice[T]) Interval() time.Duration {
	return s.interval
}

// Snapshot returns the current value, its timestamp and whether a fetch is
// running.
func (s *Slice[T]) Snapshot() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.InFlight = s.inFlight
	return out
}

// Due reports whether the slice needs a fetch at now: it is absent, or more
// than one interval has passed since the last successful fetch.
func (s *Slice[T]) Due(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dueLocked(now)
}

func (s *Slice[T]) dueLocked(now time.Time) bool {
	if !s.snap.Present {
		return true
	}
	return now.Sub(s.snap.LastUpdated) > s.interval
}

// InFlight reports whether a fetch currently holds the claim.
func (s *Slice[T]) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

// TryBegin claims the in-flight slot if the slice is due at now and no fetch
// is running. The check and the claim happen under one lock, so two
// concurrent callers never both get ok=true.
func (s *Slice[T]) TryBegin(now time.Time) (Claim, BeginResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return Claim{}, BeginInFlight
	}
	if !s.dueLocked(now) {
		return Claim{}, BeginFresh
	}
	s.inFlight = true
	return Claim{gen: s.gen}, BeginStarted
}

// Publish stores value with lastUpdated=at and releases the claim. It returns
// false, leaving the slice untouched, when the claim predates an invalidation.
func (s *Slice[T]) Publish(c Claim, value T, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.gen != s.gen {
		return false
	}
	s.snap = Snapshot[T]{Value: value, Present: true, LastUpdated: at}
	s.inFlight = false
	s.emit(EventUpdated, at)
	return true
}

// Abandon releases the claim after a failed fetch. Value and lastUpdated are
// left as they were.
func (s *Slice[T]) Abandon(c Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.gen == s.gen {
		s.inFlight = false
	}
}

// Invalidate clears the value and timestamp so the next refresh treats the
// slice as due. Any running fetch loses its right to publish.
func (s *Slice[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero Snapshot[T]
	s.snap = zero
	s.gen++
	s.inFlight = false
	s.emit(EventInvalidated, time.Time{})
}

// Age returns how long ago the value was fetched, or -1 when absent.
func (s *Slice[T]) Age(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.snap.Present {
		return -1
	}
	return now.Sub(s.snap.LastUpdated)
}

// emit is called with mu held.
func (s *Slice[T]) emit(kind EventKind, at time.Time) {
	if s.notify != nil {
		s.notify(Event{Slice: s.name, Kind: kind, At: at})
	}
}

// BeginResult says why TryBegin did or did not hand out a claim.
type BeginResult int

const (
	BeginStarted BeginResult = iota
	BeginFresh
	BeginInFlight
)

func (r BeginResult) String() string {
	switch r {
	case BeginStarted:
		return "started"
	case BeginFresh:
		return "fresh"
	case BeginInFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}
