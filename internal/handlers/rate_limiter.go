package handlers

import (
	"strings"
	"sync"
	"time"
)

// quoteLimiter caps requests per key within a fixed window.
type quoteLimiter interface {
	// Allow reports whether the key may proceed and, when it may not, how long until the window resets.
	Allow(key string) (bool, time.Duration)
}

type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]limitWindow
}

type limitWindow struct {
	used    int
	resetAt time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) quoteLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]limitWindow),
	}
}

func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || !now.Before(current.resetAt) {
		l.evictLocked(now)
		l.windows[key] = limitWindow{used: 1, resetAt: now.Add(l.window)}
		return true, 0
	}
	if current.used >= l.limit {
		return false, current.resetAt.Sub(now)
	}
	current.used++
	l.windows[key] = current
	return true, 0
}

func (l *windowLimiter) evictLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
