package auth

import (
	"sync"
	"time"
)

// failureCounter tracks failed sign-ins per key inside a sliding window.
type failureCounter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	limit    int
	window   time.Duration
}

func newFailureCounter(limit int, window time.Duration) *failureCounter {
	return &failureCounter{
		failures: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// blocked reports whether key has reached the failure limit at now.
func (c *failureCounter) blocked(key string, now time.Time) bool {
	if c.limit <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prune(key, now)) >= c.limit
}

func (c *failureCounter) record(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[key] = append(c.prune(key, now), now)
}

func (c *failureCounter) reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, key)
}

// prune drops entries older than the window. Callers hold mu.
func (c *failureCounter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-c.window)
	kept := c.failures[key][:0]
	for _, t := range c.failures[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(c.failures, key)
		return nil
	}
	c.failures[key] = kept
	return kept
}
