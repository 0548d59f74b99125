package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("rhrread", "tc"); got != "rhrread:tc" {
		t.Errorf("Key() = %q, want rhrread:tc", got)
	}
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get returns them.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	doc := []byte(`{"swt":[]}`)
	if err := c.Set(ctx, "swt:en", doc, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "swt:en")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if string(got) != string(doc) {
		t.Errorf("Get() = %s, want %s", got, doc)
	}
}

func TestInMemoryCache_Set_CopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	doc := []byte("abc")
	_ = c.Set(ctx, "k", doc, time.Minute)
	doc[0] = 'z'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Get() = %s after caller mutated input, want abc", got)
	}
}

func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache()

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that expired entries miss and are
// removed on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "fnd:en", []byte("{}"), time.Minute)
	now = now.Add(time.Minute + time.Second)

	if _, ok, _ := c.Get(ctx, "fnd:en"); ok {
		t.Error("Get() ok = true for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expired Get, want 0", c.Len())
	}
}

func TestInMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			_ = c.Set(ctx, key, []byte("v"), time.Minute)
			_, _, _ = c.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
}

func TestInMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	if err := c.Set(ctx, "fnd:en", []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := c.Delete(ctx, "fnd:en"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "fnd:en"); ok {
		t.Error("Get() ok = true after Delete")
	}
	if err := c.Delete(ctx, "fnd:en"); err != nil {
		t.Errorf("Delete() of missing key error = %v, want nil", err)
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{0, 1},
		{500 * time.Millisecond, 1},
		{90 * time.Second, 90},
		{31 * 24 * time.Hour, maxRelativeExp},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" a:1, ,b:2 ")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("parseAddrs() = %v, want [a:1 b:2]", got)
	}
}

func TestMemcachedCache_CanceledContext(t *testing.T) {
	c := NewMemcachedCache("localhost:1", 10*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("Get() with canceled ctx: want error")
	}
	if err := c.Set(ctx, "k", nil, time.Second); err == nil {
		t.Error("Set() with canceled ctx: want error")
	}
	if err := c.Delete(ctx, "k"); err == nil {
		t.Error("Delete() with canceled ctx: want error")
	}
}
