package cache

import (
	"context"
	"sync"
	"time"

	"budgetlens/internal/core"
)

// Reports caches published insight reports by their params key. It is an
// insights.Publisher, so the runner fills it as part of publishing.
// Reports computed before the last Invalidate are dropped on arrival.
type Reports struct {
	*LRU[core.Report]

	mu    sync.Mutex
	epoch uint64
}

func NewReports(size int, ttl time.Duration) *Reports {
	return &Reports{LRU: NewLRU[core.Report](size, ttl)}
}

func (r *Reports) Publish(_ context.Context, report core.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report.Epoch < r.epoch {
		return nil
	}
	r.Set(report.Params.Key(), report)
	return nil
}

func (r *Reports) Lookup(p core.Params) (core.Report, bool) {
	return r.Get(p.Key())
}

// Invalidate purges every report and refuses later reports older than
// epoch. It returns how many reports were dropped.
func (r *Reports) Invalidate(epoch uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch > r.epoch {
		r.epoch = epoch
	}
	return r.Purge()
}
