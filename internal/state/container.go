package state

import (
	"sync"
	"time"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
)

// Slice names.
const (
	SliceConditions = "conditions"
	SliceWarnings   = "warnings"
	SliceTips       = "tips"
)

// EventKind is the type of change a slice went through.
type EventKind string

const (
	EventUpdated     EventKind = "updated"
	EventInvalidated EventKind = "invalidated"
)

// Event is delivered to subscribers whenever a slice changes. At is the
// published lastUpdated for updates and zero for invalidations.
type Event struct {
	Slice string    `json:"slice"`
	Kind  EventKind `json:"kind"`
	At    time.Time `json:"at"`
}

// Intervals holds the refresh interval of each slice.
type Intervals struct {
	Conditions time.Duration
	Warnings   time.Duration
	Tips       time.Duration
}

// UniformIntervals returns Intervals with every slice set to d.
func UniformIntervals(d time.Duration) Intervals {
	return Intervals{Conditions: d, Warnings: d, Tips: d}
}

const subscriberBuffer = 16

// Container owns the three weather slices shared by the coordinator and every
// presentation surface. Create one per process and pass it explicitly.
type Container struct {
	Conditions *Slice[models.CurrentWeather]
	Warnings   *Slice[[]models.Warning]
	Tips       *Slice[[]models.Tip]

	subsMu sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewContainer returns a container with all slices absent.
func NewContainer(intervals Intervals) *Container {
	c := &Container{subs: make(map[int]chan Event)}
	c.Conditions = NewSlice[models.CurrentWeather](SliceConditions, intervals.Conditions, c.broadcast)
	c.Warnings = NewSlice[[]models.Warning](SliceWarnings, intervals.Warnings, c.broadcast)
	c.Tips = NewSlice[[]models.Tip](SliceTips, intervals.Tips, c.broadcast)
	return c
}

// InvalidateAll invalidates every slice.
func (c *Container) InvalidateAll() {
	c.Conditions.Invalidate()
	c.Warnings.Invalidate()
	c.Tips.Invalidate()
}

// Subscribe registers for change events. The returned cancel func must be
// called to release the subscription; it closes the channel. Events are
// dropped for a subscriber whose buffer is full.
func (c *Container) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			close(ch)
			c.subsMu.Unlock()
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (c *Container) Subscribers() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

func (c *Container) broadcast(ev Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
