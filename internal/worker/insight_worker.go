// Package worker recomputes insights in response to entries.changed messages.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budgetlens/internal/amqp"
	"budgetlens/internal/core"
	"budgetlens/internal/log"
)

type (
	// Consumer delivers entries.changed messages until ctx ends.
	Consumer interface {
		ConsumeEntriesChanged(ctx context.Context, handler func(context.Context, *amqp.EntriesChangedMessage) error) error
	}

	// Recomputer refreshes the published view.
	Recomputer interface {
		Refresh(ctx context.Context, p core.Params) (core.Report, error)
		Invalidate(ctx context.Context) int
		DefaultParams() core.Params
	}
)

// clockSkewMargin is how far the publisher's clock may run behind ours
// before a message is wrongly taken as already reflected.
const clockSkewMargin = 5 * time.Second

// InsightWorker recomputes the default view once per change. Messages
// stamped well before the start of the last completed recompute are already
// reflected in it and are acknowledged without another run. Message stamps
// come from the publisher's clock, so only stamps older than the last start
// by more than the skew margin are skipped.
type InsightWorker struct {
	consumer Consumer
	insights Recomputer
	logger   *log.Logger
	now      func() time.Time
	skew     time.Duration

	mu      sync.Mutex
	lastRun time.Time
}

func NewInsightWorker(consumer Consumer, insights Recomputer, logger *log.Logger) *InsightWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &InsightWorker{
		consumer: consumer,
		insights: insights,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
		skew:     clockSkewMargin,
	}
}

// Run recomputes once at startup, then consumes until ctx ends.
func (w *InsightWorker) Run(ctx context.Context) error {
	if err := w.StartupRecompute(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup recompute failed", log.FieldError, err)
	}
	return w.consumer.ConsumeEntriesChanged(ctx, w.HandleMessage)
}

// StartupRecompute publishes a fresh report so that subscribers see data
// that changed while the worker was down.
func (w *InsightWorker) StartupRecompute(ctx context.Context) error {
	_, err := w.recompute(ctx)
	return err
}

// HandleMessage is the entries.changed handler. Returning an error requeues
// the message.
func (w *InsightWorker) HandleMessage(ctx context.Context, msg *amqp.EntriesChangedMessage) error {
	w.mu.Lock()
	last := w.lastRun
	w.mu.Unlock()

	if !msg.Timestamp.IsZero() && !last.IsZero() && msg.Timestamp.Before(last.Add(-w.skew)) {
		w.logger.DebugContext(ctx, "Change already reflected, skipping",
			log.FieldEntryID, msg.EntryID,
			"message_time", msg.Timestamp,
			"last_run", last)
		return nil
	}

	report, err := w.recompute(ctx)
	if err != nil {
		return fmt.Errorf("handle change %s: %w", msg.EntryID, err)
	}
	w.logger.InfoContext(ctx, "Processed entries change",
		log.FieldEntryID, msg.EntryID,
		log.FieldEntryKind, string(msg.Kind),
		log.FieldRunID, report.RunID)
	return nil
}

func (w *InsightWorker) recompute(ctx context.Context) (core.Report, error) {
	started := w.now()
	w.insights.Invalidate(ctx)
	report, err := w.insights.Refresh(ctx, w.insights.DefaultParams())
	if err != nil {
		return core.Report{}, err
	}

	w.mu.Lock()
	if started.After(w.lastRun) {
		w.lastRun = started
	}
	w.mu.Unlock()
	return report, nil
}
