package insights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetlens/internal/core"
	"budgetlens/internal/log"
)

// ErrSuperseded is returned by Trigger when a newer run on the same stream
// started before this one finished. Nothing was published.
var ErrSuperseded = errors.New("insights: run superseded by a newer run")

// Publisher receives every completed, current report.
type Publisher interface {
	Publish(ctx context.Context, report core.Report) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, report core.Report) error

func (f PublisherFunc) Publish(ctx context.Context, report core.Report) error {
	return f(ctx, report)
}

// Publishers fans a report out to several publishers in order, stopping at
// the first error.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, report core.Report) error {
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

type RunnerConfig struct {
	Forecaster     *Forecaster
	CurrencySymbol string
	Publisher      Publisher
	// PublishTimeout bounds each publish. Zero means DefaultPublishTimeout.
	PublishTimeout time.Duration
	Logger         *log.Logger
}

const DefaultPublishTimeout = 10 * time.Second

// Runner executes the pipeline and guarantees that, per stream, only the
// most recently triggered run publishes, and that no run computed from
// entries read before the last Invalidate publishes.
type Runner struct {
	currency       string
	publisher      Publisher
	publishTimeout time.Duration
	logger         *log.Logger
	predictorFor   func(core.Params) Predictor
	now            func() time.Time

	mu      sync.Mutex
	epoch   uint64
	streams map[string]*stream
}

type stream struct {
	gen     uint64
	current *run
	// publishMu orders check-then-publish within the stream.
	publishMu sync.Mutex
}

type run struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	report core.Report
	err    error
}

func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	forecaster := cfg.Forecaster
	if forecaster == nil {
		forecaster = NewForecaster(core.DefaultMinDataPoints, logger)
	}
	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &Runner{
		currency:       cfg.CurrencySymbol,
		publisher:      cfg.Publisher,
		publishTimeout: publishTimeout,
		logger:         logger.WithComponent(log.ComponentInsights),
		predictorFor: func(p core.Params) Predictor {
			return forecaster.WithMinDataPoints(p.MinDataPoints)
		},
		now:     time.Now,
		streams: make(map[string]*stream),
	}
}

// Run computes a report without publishing it. It fails only on invalid
// params or a cancelled context.
func (r *Runner) Run(ctx context.Context, entries []core.Entry, p core.Params) (core.Report, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return core.Report{}, err
	}
	window, err := LookbackWindow(p.ViewedMonth, p.ViewedYear, p.LookbackMonths)
	if err != nil {
		return core.Report{}, err
	}

	runID := uuid.NewString()
	logger := r.logger.With(log.FieldRunID, runID)

	totals := Aggregate(entries)
	if totals.Ignored > 0 {
		logger.DebugContext(ctx, "Ignored entries with unparseable dates", log.FieldIgnored, totals.Ignored)
	}

	composer := NewComposer(r.predictorFor(p), r.currency, logger)
	records, models, err := composer.Compose(ctx, totals, window)
	if err != nil {
		return core.Report{}, err
	}

	series := make(map[string][]core.SeriesPoint, len(totals.Order))
	for _, cat := range totals.Order {
		series[cat] = Series(totals.ByCategory[cat], window)
	}

	logger.InfoContext(ctx, "Insights computed",
		log.FieldParamsKey, p.Key(),
		log.FieldEntries, len(entries),
		log.FieldCategories, len(records))

	return core.Report{
		RunID:       runID,
		Params:      p,
		Window:      window,
		Insights:    records,
		Models:      models,
		Series:      series,
		Summary:     Summarize(entries, p.ViewedMonth, p.ViewedYear),
		GeneratedAt: r.now().UTC(),
	}, nil
}

// Epoch identifies the current state of the entry data. Capture it before
// reading entries and hand it to TriggerAt.
func (r *Runner) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Invalidate starts a new epoch and cancels every run in flight. Runs from
// earlier epochs never publish. It returns the new epoch.
func (r *Runner) Invalidate() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	for _, s := range r.streams {
		if s.current != nil {
			s.current.cancel()
		}
	}
	return r.epoch
}

// Trigger is TriggerAt with the current epoch, for entries read just now.
func (r *Runner) Trigger(ctx context.Context, streamKey string, entries []core.Entry, p core.Params) (core.Report, error) {
	return r.TriggerAt(ctx, r.Epoch(), streamKey, entries, p)
}

// TriggerAt starts a run on streamKey, cancelling the one in flight there,
// and publishes the report if no newer run has been triggered and the epoch
// has not moved meanwhile.
//
// A superseded run returns ErrSuperseded together with the report of the run
// that replaced it, once that run completes. The report is empty when there
// is no such run, as after an Invalidate.
func (r *Runner) TriggerAt(ctx context.Context, epoch uint64, streamKey string, entries []core.Entry, p core.Params) (core.Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cur := &run{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	s, ok := r.streams[streamKey]
	if !ok {
		s = &stream{}
		r.streams[streamKey] = s
	}
	if s.current != nil {
		s.current.cancel()
	}
	s.gen++
	cur.gen = s.gen
	s.current = cur
	if epoch != r.epoch {
		cancel()
	}
	r.mu.Unlock()

	report, err := r.Run(runCtx, entries, p)
	if err == nil {
		report.Epoch = epoch
	}

	s.publishMu.Lock()
	if !r.mayPublish(s, cur, epoch) {
		s.publishMu.Unlock()
		r.forget(streamKey, s, cur)
		cur.err = ErrSuperseded
		close(cur.done)
		r.logger.DebugContext(ctx, "Discarding superseded run", log.FieldGeneration, cur.gen, log.FieldParamsKey, p.Key())
		return r.awaitSuccessor(ctx, s, cur.gen)
	}
	if err == nil && r.publisher != nil {
		pubCtx, cancelPub := context.WithTimeout(ctx, r.publishTimeout)
		if perr := r.publisher.Publish(pubCtx, report); perr != nil {
			err = fmt.Errorf("publish report %s: %w", report.RunID, perr)
		}
		cancelPub()
	}
	s.publishMu.Unlock()
	r.forget(streamKey, s, cur)

	cur.report, cur.err = report, err
	close(cur.done)
	return report, err
}

// mayPublish reports whether cur is still the newest run of its stream and
// of the current epoch.
func (r *Runner) mayPublish(s *stream, cur *run, epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.gen == cur.gen && epoch == r.epoch
}

// forget drops the stream once its newest run is done. The stream stays
// mapped until then so later triggers share its publish lock.
func (r *Runner) forget(streamKey string, s *stream, cur *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.gen == cur.gen && r.streams[streamKey] == s {
		delete(r.streams, streamKey)
	}
}

// awaitSuccessor waits for the newest run on s after gen and returns its
// report with ErrSuperseded.
func (r *Runner) awaitSuccessor(ctx context.Context, s *stream, gen uint64) (core.Report, error) {
	for {
		r.mu.Lock()
		next := s.current
		r.mu.Unlock()
		if next == nil || next.gen <= gen {
			return core.Report{}, ErrSuperseded
		}

		select {
		case <-next.done:
		case <-ctx.Done():
			return core.Report{}, ErrSuperseded
		}
		if errors.Is(next.err, ErrSuperseded) {
			gen = next.gen
			continue
		}
		if next.report.RunID == "" {
			return core.Report{}, ErrSuperseded
		}
		return next.report, ErrSuperseded
	}
}
