package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter keeps counters in process memory. Use it for a single worker
// process or tests; separate processes do not share its quota.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return NewMemoryLimiterWithClock(time.Now)
}

func NewMemoryLimiterWithClock(now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     now,
	}
}

func (l *MemoryLimiter) TooManyAttempts(_ context.Context, key string, max int) (bool, error) {
	if max <= 0 {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return false, nil
	}
	if !l.now().Before(w.expiresAt) {
		delete(l.windows, key)
		return false, nil
	}
	return w.count >= max, nil
}

func (l *MemoryLimiter) Hit(_ context.Context, key string, decay time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(decay)}
		return nil
	}
	w.count++
	return nil
}

// Attempts returns the current count for key, zero when the window has expired.
func (l *MemoryLimiter) Attempts(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !l.now().Before(w.expiresAt) {
		return 0
	}
	return w.count
}
