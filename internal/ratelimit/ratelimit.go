package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Defaults: 10 requests per minute per scope.
const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// LimitError is returned by Check for a rejected request.
type LimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
}

// window counts requests since start.
type window struct {
	start time.Time
	count int
}

// FixedWindow allows up to limit requests per scope in each window. A
// scope's window opens with its first request and resets once it has
// elapsed.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	length  time.Duration
	now     func() time.Time
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) { l.now = now }
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(l *FixedWindow) {
		if d > 0 {
			l.length = d
		}
	}
}

// NewFixedWindow creates a limiter allowing limit requests per window.
// A non-positive limit uses DefaultLimit.
func NewFixedWindow(limit int, opts ...Option) *FixedWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	l := &FixedWindow{
		windows: make(map[string]*window),
		limit:   limit,
		length:  DefaultWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the number of requests allowed per window.
func (l *FixedWindow) Limit() int { return l.limit }

// Window returns the window length.
func (l *FixedWindow) Window() time.Duration { return l.length }

// Allow counts a request for scope. A rejected request gets the time left
// in the current window, which is positive and at most the window length.
func (l *FixedWindow) Allow(scope string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[scope]
	if !ok || now.Sub(w.start) >= l.length {
		l.windows[scope] = &window{start: now, count: 1}
		l.prune(now)
		return true, 0
	}

	if w.count < l.limit {
		w.count++
		return true, 0
	}
	return false, w.start.Add(l.length).Sub(now)
}

// Check is Allow returning a *LimitError on rejection.
func (l *FixedWindow) Check(scope string) error {
	if ok, retryAfter := l.Allow(scope); !ok {
		return &LimitError{Scope: scope, RetryAfter: retryAfter}
	}
	return nil
}

// prune drops expired windows. Callers hold mu.
func (l *FixedWindow) prune(now time.Time) {
	for scope, w := range l.windows {
		if now.Sub(w.start) >= l.length {
			delete(l.windows, scope)
		}
	}
}
