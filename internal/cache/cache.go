// Package cache holds computed insight reports keyed by view parameters.
// Entries expire after a TTL and are purged whenever the entry store changes.
package cache

import (
	"context"
	"time"

	"budgetlens/internal/log"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Purge drops every key. It returns how many were removed.
	Purge() int
	Len() int
}

// Cleaner is implemented by caches whose expired entries can be swept.
type Cleaner interface {
	CleanExpired() int
}

// Janitor sweeps registered caches on an interval until its context ends.
type Janitor struct {
	caches []Cleaner
	logger *log.Logger
	done   chan struct{}
}

func NewJanitor(logger *log.Logger, caches ...Cleaner) *Janitor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Janitor{
		caches: caches,
		logger: logger.WithComponent(log.ComponentCache),
		done:   make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	defer close(j.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.DebugContext(ctx, "Evicted expired cache entries", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep cleans every cache once.
func (j *Janitor) Sweep() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}

// Done is closed when Run returns.
func (j *Janitor) Done() <-chan struct{} {
	return j.done
}
