package insights

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"budgetlens/internal/core"
)

type recordingPublisher struct {
	mu      sync.Mutex
	reports []core.Report
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, r core.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reports = append(p.reports, r)
	return nil
}

func (p *recordingPublisher) published() []core.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Report(nil), p.reports...)
}

func newTestRunner(pub Publisher, seed int64) *Runner {
	f := NewForecaster(core.DefaultMinDataPoints, nil)
	f.NewRand = seeded(seed)
	return NewRunner(RunnerConfig{Forecaster: f, Publisher: pub})
}

func TestRunFoodScenario(t *testing.T) {
	r := newTestRunner(nil, 7)
	entries := append(foodScenario(),
		core.Income{Amount: decimal.NewFromInt(12000), Month: 5, Year: 2024, Frequency: core.Monthly},
		expense("2024-06-11", "Gifts", 0),
	)

	report, err := r.Run(context.Background(), entries, foodParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" || len(report.Window) != 6 || report.Window[5] != "2024-06" {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if len(report.Insights) != 2 {
		t.Fatalf("expected Food and Gifts insights, got %d", len(report.Insights))
	}

	food := report.Insights[0]
	if food.Category != "Food" {
		t.Fatalf("Food should rank first, got %s", food.Category)
	}
	if food.CurrentValue != 500 || math.Abs(food.WindowAverage-166.67) > 0.01 || !food.Flagged {
		t.Fatalf("unexpected Food stats: %+v", food)
	}
	if math.Abs(food.PercentChangeVsAverage-200) > 1e-6 {
		t.Fatalf("pct change = %v, want ~200", food.PercentChangeVsAverage)
	}
	if !food.Forecast.Trained || food.Forecast.WindowSize != 5 || food.Forecast.Prediction < 0 {
		t.Fatalf("Food should train with window 5: %+v", food.Forecast)
	}
	if food.Comparison != Classify(ForecastDiff(500, food.Forecast.Prediction)) {
		t.Fatalf("comparison %q does not match prediction %v", food.Comparison, food.Forecast.Prediction)
	}
	if food.Forecast.Prediction > 0 && food.Forecast.Prediction <= 500/1.15 && food.Comparison != core.ComparisonHigher {
		t.Fatalf("prediction %v is well below 500, expected higher", food.Forecast.Prediction)
	}

	gifts := report.Insights[1]
	if gifts.Forecast.Reason != core.ReasonInsufficientData || gifts.Comparison != core.ComparisonNone {
		t.Fatalf("all-zero Gifts should be skipped: %+v", gifts)
	}
	if m := report.Models["Gifts"]; m.Trained || m.Reason != core.ReasonInsufficientData {
		t.Fatalf("unexpected Gifts model info: %+v", m)
	}
	if m := report.Models["Food"]; !m.Trained || m.WindowSize != 5 {
		t.Fatalf("unexpected Food model info: %+v", m)
	}

	series := report.Series["Food"]
	if len(series) != 6 || series[0].Value != 100 || series[5].Value != 500 {
		t.Fatalf("unexpected Food series: %+v", series)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	entries := append(foodScenario(),
		expense("2024-04-02", "Transport", 60),
		expense("2024-06-02", "Transport", 80),
		expense("2023-01-02", "Old", 10),
	)
	first, err := newTestRunner(nil, 1).Run(context.Background(), entries, foodParams())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := newTestRunner(nil, 99).Run(context.Background(), entries, foodParams())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(first.Insights) != len(second.Insights) {
		t.Fatalf("insight counts differ: %d vs %d", len(first.Insights), len(second.Insights))
	}
	for i := range first.Insights {
		a, b := first.Insights[i], second.Insights[i]
		if a.Category != b.Category || a.CurrentValue != b.CurrentValue || a.WindowAverage != b.WindowAverage ||
			a.PercentChangeVsAverage != b.PercentChangeVsAverage || a.Flagged != b.Flagged {
			t.Fatalf("record %d differs: %+v vs %+v", i, a, b)
		}
		if a.Forecast.Trained != b.Forecast.Trained || a.Forecast.WindowSize != b.Forecast.WindowSize ||
			a.Forecast.Reason != b.Forecast.Reason {
			t.Fatalf("eligibility differs for %s: %+v vs %+v", a.Category, a.Forecast, b.Forecast)
		}
		if a.Forecast.Prediction < 0 || b.Forecast.Prediction < 0 {
			t.Fatalf("negative prediction for %s", a.Category)
		}
	}
}

func TestRunRejectsInvalidParams(t *testing.T) {
	r := newTestRunner(nil, 1)
	p := foodParams()
	p.LookbackMonths = -1
	if _, err := r.Run(context.Background(), foodScenario(), p); !errors.Is(err, core.ErrInvalidLookback) {
		t.Fatalf("expected ErrInvalidLookback, got %v", err)
	}
	p = foodParams()
	p.ViewedMonth = 12
	if _, err := r.Run(context.Background(), foodScenario(), p); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

// blockingPredictor signals started and then waits for its run to be cancelled.
type blockingPredictor struct {
	once    *sync.Once
	started chan struct{}
}

func (b blockingPredictor) Forecast(ctx context.Context, _ map[core.MonthKey]float64, _ []core.MonthKey) core.ForecastResult {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return core.Skipped(core.ReasonTrainingFailed)
}

func TestTriggerPublishesOnlyLatestRun(t *testing.T) {
	pub := &recordingPublisher{}
	r := newTestRunner(pub, 1)

	started := make(chan struct{})
	var calls atomic.Int32
	r.predictorFor = func(core.Params) Predictor {
		if calls.Add(1) == 1 {
			return blockingPredictor{once: &sync.Once{}, started: started}
		}
		return stubPredictor{result: core.Trained(300, 5)}
	}

	type result struct {
		report core.Report
		err    error
	}
	results := make(chan result, 1)
	go func() {
		rep, err := r.Trigger(context.Background(), "view", foodScenario(), foodParams())
		results <- result{rep, err}
	}()
	<-started

	latest, err := r.Trigger(context.Background(), "view", foodScenario(), foodParams())
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	first := <-results
	if !errors.Is(first.err, ErrSuperseded) {
		t.Fatalf("first trigger should be superseded, got %v", first.err)
	}
	if first.report.RunID != latest.RunID {
		t.Fatalf("superseded trigger should answer with the newer report, got %q", first.report.RunID)
	}

	reports := pub.published()
	if len(reports) != 1 || reports[0].RunID != latest.RunID {
		t.Fatalf("only the latest run should publish, got %d reports", len(reports))
	}
	if reports[0].Insights[0].Comparison != core.ComparisonHigher {
		t.Fatalf("published report should come from the second run: %+v", reports[0].Insights[0])
	}
}

func TestTriggerStreamsAreIndependent(t *testing.T) {
	pub := &recordingPublisher{}
	r := newTestRunner(pub, 1)
	r.predictorFor = func(core.Params) Predictor { return stubPredictor{result: core.Skipped(core.ReasonInsufficientData)} }

	if _, err := r.Trigger(context.Background(), "a", foodScenario(), foodParams()); err != nil {
		t.Fatalf("trigger a: %v", err)
	}
	if _, err := r.Trigger(context.Background(), "b", foodScenario(), foodParams()); err != nil {
		t.Fatalf("trigger b: %v", err)
	}
	if n := len(pub.published()); n != 2 {
		t.Fatalf("expected 2 published reports, got %d", n)
	}
}

func TestTriggerPublishError(t *testing.T) {
	boom := errors.New("boom")
	r := newTestRunner(&recordingPublisher{err: boom}, 1)
	r.predictorFor = func(core.Params) Predictor { return stubPredictor{result: core.Skipped(core.ReasonInsufficientData)} }
	if _, err := r.Trigger(context.Background(), "view", foodScenario(), foodParams()); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestInvalidateStopsRunsInFlight(t *testing.T) {
	pub := &recordingPublisher{}
	r := newTestRunner(pub, 1)
	started := make(chan struct{})
	r.predictorFor = func(core.Params) Predictor {
		return blockingPredictor{once: &sync.Once{}, started: started}
	}

	errc := make(chan error, 1)
	go func() {
		_, err := r.Trigger(context.Background(), "view", foodScenario(), foodParams())
		errc <- err
	}()
	<-started

	if epoch := r.Invalidate(); epoch != 1 {
		t.Fatalf("Invalidate() = %d, want 1", epoch)
	}
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded after invalidation, got %v", err)
	}
	if n := len(pub.published()); n != 0 {
		t.Fatalf("invalidated run published %d reports", n)
	}
}

func TestTriggerAtStaleEpochDoesNotPublish(t *testing.T) {
	pub := &recordingPublisher{}
	r := newTestRunner(pub, 1)
	r.predictorFor = func(core.Params) Predictor { return stubPredictor{result: core.Skipped(core.ReasonInsufficientData)} }

	stale := r.Epoch()
	r.Invalidate()

	if _, err := r.TriggerAt(context.Background(), stale, "view", foodScenario(), foodParams()); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for a stale epoch, got %v", err)
	}
	report, err := r.TriggerAt(context.Background(), r.Epoch(), "view", foodScenario(), foodParams())
	if err != nil {
		t.Fatalf("TriggerAt() error = %v", err)
	}
	if report.Epoch != 1 {
		t.Fatalf("report epoch = %d, want 1", report.Epoch)
	}
	if n := len(pub.published()); n != 1 {
		t.Fatalf("expected 1 published report, got %d", n)
	}
}

// blockingPublisher holds Publish until release closes or ctx ends.
type blockingPublisher struct {
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (b *blockingPublisher) Publish(ctx context.Context, _ core.Report) error {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSlowPublishDoesNotBlockOtherStreams(t *testing.T) {
	slow := &blockingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
	r := newTestRunner(nil, 1)
	r.predictorFor = func(core.Params) Predictor { return stubPredictor{result: core.Skipped(core.ReasonInsufficientData)} }
	r.publisher = PublisherFunc(func(ctx context.Context, rep core.Report) error {
		if rep.Params.LookbackMonths == 6 {
			return slow.Publish(ctx, rep)
		}
		return nil
	})

	go func() {
		_, _ = r.Trigger(context.Background(), "slow", foodScenario(), foodParams())
	}()
	<-slow.entered

	other := foodParams()
	other.LookbackMonths = 3
	done := make(chan error, 1)
	go func() {
		_, err := r.Trigger(context.Background(), "other", foodScenario(), other)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("other stream: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("a slow publish on one stream blocked another stream")
	}
	close(slow.release)
}

func TestPublishIsBounded(t *testing.T) {
	slow := &blockingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
	f := NewForecaster(core.DefaultMinDataPoints, nil)
	r := NewRunner(RunnerConfig{Forecaster: f, Publisher: slow, PublishTimeout: 20 * time.Millisecond})
	r.predictorFor = func(core.Params) Predictor { return stubPredictor{result: core.Skipped(core.ReasonInsufficientData)} }

	report, err := r.Trigger(context.Background(), "view", foodScenario(), foodParams())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the publish deadline, got %v", err)
	}
	if report.RunID == "" {
		t.Fatal("a report that failed to publish is still returned")
	}
}
