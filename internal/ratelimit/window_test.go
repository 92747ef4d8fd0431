package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func closeLimiter(t *testing.T, l *WindowLimiter) {
	t.Helper()
	if err := l.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestWindowLimiterAllowsUpToLimit(t *testing.T) {
	l := NewWindowLimiter(5, 0, time.Minute)
	defer closeLimiter(t, l)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "k1")
		if err != nil {
			t.Fatalf("Allow error on request %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected Allow=true for request %d (within limit)", i)
		}
	}
}

func TestWindowLimiterDeniesOverLimit(t *testing.T) {
	l := NewWindowLimiter(3, 1, time.Minute)
	defer closeLimiter(t, l)

	ctx := context.Background()
	for i := 0; i < 4; i++ { // limit 3 + burst 1
		ok, _ := l.Allow(ctx, "k1")
		if !ok {
			t.Fatalf("expected Allow=true for request %d", i)
		}
	}

	ok, err := l.Allow(ctx, "k1")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if ok {
		t.Fatal("expected Allow=false after limit+burst exhausted")
	}
}

func TestWindowLimiterIndependentKeys(t *testing.T) {
	l := NewWindowLimiter(1, 0, time.Minute)
	defer closeLimiter(t, l)

	ctx := context.Background()
	if ok, _ := l.Allow(ctx, "k1"); !ok {
		t.Fatal("k1 first request should pass")
	}
	if ok, _ := l.Allow(ctx, "k1"); ok {
		t.Fatal("k1 second request should be denied")
	}
	if ok, _ := l.Allow(ctx, "k2"); !ok {
		t.Fatal("k2 must not share k1's window")
	}
}

func TestWindowLimiterResetsAfterWindow(t *testing.T) {
	l := NewWindowLimiter(1, 0, time.Minute)
	defer closeLimiter(t, l)

	current := time.Unix(0, 0)
	l.now = func() time.Time { return current }

	ctx := context.Background()
	if ok, _ := l.Allow(ctx, "k1"); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _ := l.Allow(ctx, "k1"); ok {
		t.Fatal("second request in same window should be denied")
	}

	current = current.Add(time.Minute)
	if ok, _ := l.Allow(ctx, "k1"); !ok {
		t.Fatal("request in fresh window should pass")
	}
}

func TestWindowLimiterEvictsStale(t *testing.T) {
	l := NewWindowLimiter(1, 0, time.Minute)
	defer closeLimiter(t, l)

	current := time.Unix(0, 0)
	l.now = func() time.Time { return current }

	_, _ = l.Allow(context.Background(), "k1")
	current = current.Add(11 * time.Minute)
	l.evictStale()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.windows) != 0 {
		t.Errorf("expected stale windows evicted, %d remain", len(l.windows))
	}
}

func TestWindowLimiterConcurrent(t *testing.T) {
	l := NewWindowLimiter(1000, 0, time.Minute)
	defer closeLimiter(t, l)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = l.Allow(context.Background(), "shared")
			}
		}()
	}
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if got := l.windows["shared"].count; got != 500 {
		t.Errorf("count = %d, want 500", got)
	}
}

func TestNoopLimiter(t *testing.T) {
	var l Limiter = NoopLimiter{}
	ok, err := l.Allow(context.Background(), "anything")
	if err != nil || !ok {
		t.Fatalf("NoopLimiter.Allow = (%v, %v), want (true, nil)", ok, err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestWindowLimiterCloseIdempotent(t *testing.T) {
	l := NewWindowLimiter(1, 0, time.Minute)
	if err := l.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}
