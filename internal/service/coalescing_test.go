package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequestCoalescer_Do_ConcurrentRequests(t *testing.T) {
	rc := newRequestCoalescer()
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func() ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("doc"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _, errs[idx] = rc.Do(context.Background(), "rhrread:en", fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil || string(results[i]) != "doc" {
			t.Errorf("request %d = %q, %v; want doc, nil", i, results[i], errs[i])
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fn call count = %d, want 1", calls.Load())
	}
	if rc.InFlight() != 0 {
		t.Errorf("InFlight() = %d after completion, want 0", rc.InFlight())
	}
}

func TestRequestCoalescer_Do_ErrorPropagation(t *testing.T) {
	rc := newRequestCoalescer()
	wantErr := errors.New("upstream down")

	_, _, err := rc.Do(context.Background(), "fnd:tc", func() ([]byte, error) { return nil, wantErr })
	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
}

func TestRequestCoalescer_Do_DifferentKeysIndependent(t *testing.T) {
	rc := newRequestCoalescer()
	var calls atomic.Int32
	fn := func() ([]byte, error) {
		calls.Add(1)
		return []byte("x"), nil
	}
	_, _, _ = rc.Do(context.Background(), "a", fn)
	_, _, _ = rc.Do(context.Background(), "b", fn)
	if calls.Load() != 2 {
		t.Errorf("fn call count = %d, want 2", calls.Load())
	}
}

func TestRequestCoalescer_Do_WaiterContextCanceled(t *testing.T) {
	rc := newRequestCoalescer()
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := rc.Do(ctx, "swt:en", func() ([]byte, error) {
		<-release
		return nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}
}
