package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"budgetlens/internal/amqp"
	"budgetlens/internal/cache"
	"budgetlens/internal/core"
	"budgetlens/internal/entries"
	"budgetlens/internal/insights"
	"budgetlens/internal/log"
)

// InsightServiceConfig holds the view defaults applied to partial params.
type InsightServiceConfig struct {
	LookbackMonths int
	MinDataPoints  int
	Now            func() time.Time
}

// InsightService serves insight reports from the cache and recomputes them
// when entries change. Concurrent requests for the same view share one run.
type InsightService struct {
	lister  entries.Lister
	runner  *insights.Runner
	reports *cache.Reports
	config  InsightServiceConfig
	logger  *log.Logger

	group singleflight.Group
}

// NewInsightService wires the service. reports may be nil to disable caching;
// when set it should also be one of the runner's publishers.
func NewInsightService(lister entries.Lister, runner *insights.Runner, reports *cache.Reports, config InsightServiceConfig, logger *log.Logger) *InsightService {
	if logger == nil {
		logger = log.Discard()
	}
	if config.LookbackMonths == 0 {
		config.LookbackMonths = core.DefaultLookbackMonths
	}
	if config.MinDataPoints == 0 {
		config.MinDataPoints = core.DefaultMinDataPoints
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &InsightService{
		lister:  lister,
		runner:  runner,
		reports: reports,
		config:  config,
		logger:  logger.WithComponent(log.ComponentInsights),
	}
}

// DefaultParams views the current month with the configured tuning.
func (s *InsightService) DefaultParams() core.Params {
	p := core.DefaultParams(s.config.Now())
	p.LookbackMonths = s.config.LookbackMonths
	p.MinDataPoints = s.config.MinDataPoints
	return p
}

// Complete fills zero tuning fields from the service configuration.
func (s *InsightService) Complete(p core.Params) core.Params {
	if p.LookbackMonths == 0 {
		p.LookbackMonths = s.config.LookbackMonths
	}
	if p.MinDataPoints == 0 {
		p.MinDataPoints = s.config.MinDataPoints
	}
	return p
}

// Report returns the cached report for p, computing and publishing it on a
// miss.
func (s *InsightService) Report(ctx context.Context, p core.Params) (core.Report, error) {
	p = s.Complete(p)
	if err := p.Validate(); err != nil {
		return core.Report{}, err
	}
	if s.reports != nil {
		if report, ok := s.reports.Lookup(p); ok {
			return report, nil
		}
	}

	v, err, shared := s.group.Do(p.Key(), func() (any, error) {
		return s.compute(ctx, p)
	})
	if shared {
		s.logger.DebugContext(ctx, "Shared in-flight insights run", log.FieldParamsKey, p.Key())
	}
	if err != nil {
		return core.Report{}, err
	}
	return v.(core.Report), nil
}

// Refresh recomputes p, bypassing the cache, and publishes the result. A
// Refresh started while another is running on the same view supersedes it.
func (s *InsightService) Refresh(ctx context.Context, p core.Params) (core.Report, error) {
	p = s.Complete(p)
	if err := p.Validate(); err != nil {
		return core.Report{}, err
	}
	return s.compute(ctx, p)
}

// Summary balances income against expenses for the viewed month of p. It
// reads the entries directly and needs no forecast.
func (s *InsightService) Summary(ctx context.Context, p core.Params) (core.MonthlySummary, error) {
	p = s.Complete(p)
	if err := p.Validate(); err != nil {
		return core.MonthlySummary{}, err
	}
	list, err := s.lister.List(ctx)
	if err != nil {
		return core.MonthlySummary{}, fmt.Errorf("list entries: %w", err)
	}
	return insights.Summarize(list, p.ViewedMonth, p.ViewedYear), nil
}

// maxComputeAttempts bounds how often a run cut short by an entries change
// is restarted on fresh entries.
const maxComputeAttempts = 3

func (s *InsightService) compute(ctx context.Context, p core.Params) (core.Report, error) {
	for attempt := 1; ; attempt++ {
		epoch := s.runner.Epoch()
		list, err := s.lister.List(ctx)
		if err != nil {
			return core.Report{}, fmt.Errorf("list entries: %w", err)
		}

		report, err := s.runner.TriggerAt(ctx, epoch, p.Key(), list, p)
		switch {
		case errors.Is(err, insights.ErrSuperseded) && report.RunID != "":
			s.logger.DebugContext(ctx, "Run superseded, answering with the newer run", log.FieldParamsKey, p.Key())
			return report, nil
		case errors.Is(err, insights.ErrSuperseded) && ctx.Err() == nil && attempt < maxComputeAttempts:
			s.logger.DebugContext(ctx, "Entries changed during the run, recomputing",
				log.FieldParamsKey, p.Key(),
				"attempt", attempt)
			continue
		case errors.Is(err, insights.ErrSuperseded) && ctx.Err() == nil:
			// Entries keep changing; answer without publishing.
			return s.runner.Run(ctx, list, p)
		case err != nil && report.RunID != "":
			fields := log.NewFields().WithOperation(log.OpPublish).WithError(err)
			s.logger.WarnContext(ctx, "Report computed but not fully published",
				append(fields.ToSlice(), log.FieldRunID, report.RunID)...)
			return report, nil
		case errors.Is(err, insights.ErrSuperseded):
			return core.Report{}, ctx.Err()
		case err != nil:
			return core.Report{}, err
		}
		return report, nil
	}
}

// Invalidate drops every cached report and stops runs computed from the
// entries as they were before the change from publishing.
func (s *InsightService) Invalidate(ctx context.Context) int {
	epoch := s.runner.Invalidate()
	if s.reports == nil {
		return 0
	}
	n := s.reports.Invalidate(epoch)
	if n > 0 {
		s.logger.DebugContext(ctx, "Invalidated cached reports", "count", n)
	}
	return n
}

// HandleEntriesChanged invalidates the cache and recomputes the default view.
// It is the consumer for entries.changed messages.
func (s *InsightService) HandleEntriesChanged(ctx context.Context, msg *amqp.EntriesChangedMessage) error {
	s.Invalidate(ctx)
	p := s.DefaultParams()
	report, err := s.Refresh(ctx, p)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("recompute %s: %w", p.Key(), err)
	}
	s.logger.InfoContext(ctx, "Recomputed insights after entries change",
		log.FieldEntryID, msg.EntryID,
		log.FieldRunID, report.RunID,
		log.FieldParamsKey, p.Key())
	return nil
}
