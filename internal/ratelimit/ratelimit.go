// internal/ratelimit/ratelimit.go
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a process-wide sliding-window counter: at most max events are
// admitted within any trailing window. All callers share one instance, so
// the bound holds across concurrent MCP and HTTP requests.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	events []time.Time

	now func() time.Time
}

// Stats is a point-in-time view of the limiter for status reporting.
type Stats struct {
	Used          int           `json:"used"`
	Max           int           `json:"max"`
	Window        time.Duration `json:"-"`
	WindowSeconds int           `json:"window_seconds"`
}

// New returns a limiter admitting max events per trailing window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		events: make([]time.Time, 0, max),
		now:    time.Now,
	}
}

// Allow records and admits one event if the window has room. When the window
// is full it admits nothing and reports how long until the oldest recorded
// event slides out.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.events) >= l.max {
		retryAfter := l.window - now.Sub(l.events[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	l.events = append(l.events, now)
	return true, 0
}

// Stats reports current window occupancy.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return Stats{
		Used:          len(l.events),
		Max:           l.max,
		Window:        l.window,
		WindowSeconds: int(l.window / time.Second),
	}
}

// prune drops events that have slid out of the trailing window. Callers hold
// the lock.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.events) && !l.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.events = append(l.events[:0], l.events[i:]...)
	}
}
