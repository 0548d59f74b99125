package service

import (
	"context"
	"sync"
)

// call is one upstream document fetch that several callers may wait for.
type call struct {
	done chan struct{}
	body []byte
	err  error
}

// requestCoalescer shares one in-flight fetch among concurrent callers asking
// for the same document. WeatherService keys calls by cache epoch, so a fetch
// started before a Purge is never shared with one started after it.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*call
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{inFlight: make(map[string]*call)}
}

// Do runs fn for key unless a run is already in flight, in which case it
// waits for that run's result. fn runs detached from the first caller's
// cancellation; each caller stops waiting when its own ctx ends.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func() ([]byte, error)) (body []byte, shared bool, err error) {
	rc.mu.Lock()
	c, exists := rc.inFlight[key]
	if !exists {
		c = &call{done: make(chan struct{})}
		rc.inFlight[key] = c
		go func() {
			c.body, c.err = fn()
			rc.mu.Lock()
			delete(rc.inFlight, key)
			rc.mu.Unlock()
			close(c.done)
		}()
	}
	rc.mu.Unlock()

	select {
	case <-c.done:
		return c.body, exists, c.err
	case <-ctx.Done():
		return nil, exists, ctx.Err()
	}
}

// InFlight returns the number of distinct keys being fetched.
func (rc *requestCoalescer) InFlight() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}
