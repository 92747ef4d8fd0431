package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window tracks request counts for one key within the current fixed window.
type window struct {
	start time.Time
	count int
}

// WindowLimiter implements Limiter using an in-memory fixed-window counter
// per key.
//
// Each key may make at most limit requests per window. An extra burst
// allowance absorbs short spikes at window boundaries. A background
// goroutine evicts stale entries to bound memory.
type WindowLimiter struct {
	limit  int
	burst  int
	length time.Duration

	mu      sync.Mutex
	windows map[string]*window

	stopOnce sync.Once
	done     chan struct{}

	now func() time.Time // injectable for tests
}

// NewWindowLimiter creates a fixed-window limiter.
//   - limit: sustained requests per window per key
//   - burst: extra requests tolerated within a single window
//   - length: window duration (e.g. time.Minute for a per-minute limit)
//
// A background goroutine evicts keys whose window expired more than ten
// window lengths ago. Call Close to stop it.
func NewWindowLimiter(limit, burst int, length time.Duration) *WindowLimiter {
	l := &WindowLimiter{
		limit:   limit,
		burst:   burst,
		length:  length,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.cleanup()
	return l
}

// Allow counts one request against key's current window. Returns true if
// the window has capacity (request should proceed), false otherwise.
func (l *WindowLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.length {
		l.windows[key] = &window{start: now, count: 1}
		return true, nil
	}

	if w.count >= l.limit+l.burst {
		return false, nil
	}
	w.count++
	return true, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *WindowLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.done) })
	return nil
}

// cleanup periodically evicts windows that expired long ago.
func (l *WindowLimiter) cleanup() {
	ticker := time.NewTicker(l.length)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

func (l *WindowLimiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-10 * l.length)
	for key, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, key)
		}
	}
}
