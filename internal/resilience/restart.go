package resilience

import (
	"sync"
	"time"
)

// RestartBudget bounds how many stage restarts are allowed within a
// sliding time window. When the budget is exhausted the caller should
// stop restarting and fail the session instead.
type RestartBudget struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	restarts []time.Time
	now      func() time.Time
}

// NewRestartBudget creates a budget of limit restarts per window.
func NewRestartBudget(limit int, window time.Duration) *RestartBudget {
	return &RestartBudget{
		window: window,
		limit:  limit,
		now:    time.Now,
	}
}

// Allow records a restart attempt and reports whether it is within
// budget. Attempts outside the window no longer count.
func (b *RestartBudget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-b.window)

	kept := b.restarts[:0]
	for _, ts := range b.restarts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.restarts = kept

	if len(b.restarts) >= b.limit {
		return false
	}
	b.restarts = append(b.restarts, now)
	return true
}

// Used returns the number of restarts currently counted in the window.
func (b *RestartBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.window)
	n := 0
	for _, ts := range b.restarts {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
