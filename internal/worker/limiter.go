package worker

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter paces session loads per data root, so sessions on a slow or
// shared volume do not all hit it at once
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new limiter; loadsPerSecond <= 0 disables pacing
func NewLimiter(loadsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	limit := rate.Limit(loadsPerSecond)
	if loadsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait waits for clearance to load the file at path
func (l *Limiter) Wait(ctx context.Context, path string) error {
	return l.getLimiter(dataRoot(path)).Wait(ctx)
}

// Allow checks if a load is allowed without waiting
func (l *Limiter) Allow(path string) bool {
	return l.getLimiter(dataRoot(path)).Allow()
}

// getLimiter returns the rate limiter for a data root
func (l *Limiter) getLimiter(root string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[root]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[root]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[root] = limiter

	return limiter
}

// SetRootRate sets a custom rate for one data root; loadsPerSecond <= 0
// leaves the root unpaced
func (l *Limiter) SetRootRate(root string, loadsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	limit := rate.Limit(loadsPerSecond)
	if loadsPerSecond <= 0 {
		limit = rate.Inf
	}
	l.limiters[filepath.Clean(root)] = rate.NewLimiter(limit, burst)
}

// dataRoot returns the directory holding a session file
func dataRoot(path string) string {
	return filepath.Dir(filepath.Clean(path))
}
