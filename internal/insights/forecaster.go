package insights

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"budgetlens/internal/core"
	"budgetlens/internal/log"
	"budgetlens/internal/nn"
)

const (
	// DefaultMaxWindow caps the number of months fed to the model.
	DefaultMaxWindow = 5
	minWindow        = 2
	minStd           = 1e-6
)

var (
	DefaultHidden = []int{16, 8}

	ErrTrainingPanic = errors.New("insights: training panicked")
)

// Predictor produces a forecast for one category. Forecaster is the
// production implementation.
type Predictor interface {
	Forecast(ctx context.Context, monthly map[core.MonthKey]float64, window []core.MonthKey) core.ForecastResult
}

// Forecaster trains a fresh sliding-window regressor per call.
type Forecaster struct {
	MinDataPoints int
	MaxWindow     int
	Hidden        []int
	Train         nn.TrainConfig
	// NewRand seeds weight initialization and shuffling. Nil means a
	// time-seeded source.
	NewRand func() *rand.Rand

	logger *log.Logger
}

func NewForecaster(minDataPoints int, logger *log.Logger) *Forecaster {
	if minDataPoints <= 0 {
		minDataPoints = core.DefaultMinDataPoints
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Forecaster{
		MinDataPoints: minDataPoints,
		MaxWindow:     DefaultMaxWindow,
		Hidden:        DefaultHidden,
		Train:         nn.DefaultTrainConfig(),
		logger:        logger.WithComponent(log.ComponentForecast),
	}
}

// WithMinDataPoints returns a copy using n as the eligibility threshold.
func (f *Forecaster) WithMinDataPoints(n int) *Forecaster {
	cp := *f
	cp.MinDataPoints = n
	return &cp
}

// Gate applies the eligibility rules to a dense value vector. It returns the
// window size to train with, or the reason the category is skipped.
func (f *Forecaster) Gate(values []float64) (int, core.SkipReason) {
	if len(values) < f.MinDataPoints || allZero(values) {
		return 0, core.ReasonInsufficientData
	}
	maxWindow := f.MaxWindow
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}
	w := min(len(values)-1, maxWindow)
	if w < minWindow {
		return 0, core.ReasonNotEnoughWindows
	}
	return w, ""
}

// Forecast never fails: training problems come back as a training-failed skip.
func (f *Forecaster) Forecast(ctx context.Context, monthly map[core.MonthKey]float64, window []core.MonthKey) core.ForecastResult {
	values := Dense(monthly, window)
	w, reason := f.Gate(values)
	if reason != "" {
		return core.Skipped(reason)
	}

	prediction, loss, err := f.fit(ctx, values, w)
	if err != nil {
		f.logger.WarnContext(ctx, "Training failed, using basic statistics",
			log.FieldWindowSize, w, log.FieldError, err)
		return core.Skipped(core.ReasonTrainingFailed)
	}
	f.logger.DebugContext(ctx, "Model trained",
		log.FieldWindowSize, w, log.FieldLoss, loss, log.FieldPrediction, prediction)
	return core.Trained(prediction, w)
}

// fit trains on the sliding-window pairs of values and predicts the month
// after the last one. All buffers come from one arena that is released on
// return, panics included.
func (f *Forecaster) fit(ctx context.Context, values []float64, w int) (prediction, loss float64, err error) {
	arena := nn.NewArena()
	defer arena.Release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTrainingPanic, r)
		}
	}()

	x, y := slidingPairs(arena, values, w)
	mean, std := featureStats(x.Data)
	normalize(x.Data, mean, std)
	normalize(y, mean, std)

	rng := f.newRand()
	model := nn.NewRegressor(arena, rng, w, f.Hidden...)

	cfg := f.Train
	cfg.BatchSize = min(cfg.BatchSize, x.Rows)
	loss, err = model.Fit(ctx, rng, x, y, cfg)
	if err != nil {
		return 0, loss, err
	}

	last := arena.Alloc(w)
	copy(last, values[len(values)-w:])
	normalize(last, mean, std)
	out, err := model.Predict(last)
	if err != nil {
		return 0, loss, err
	}
	return clampPrediction(out*std + mean), loss, nil
}

func (f *Forecaster) newRand() *rand.Rand {
	if f.NewRand != nil {
		return f.NewRand()
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// slidingPairs builds X_i = values[i:i+w], y_i = values[i+w].
func slidingPairs(arena *nn.Arena, values []float64, w int) (nn.Matrix, []float64) {
	n := len(values) - w
	x := arena.Matrix(n, w)
	y := arena.Alloc(n)
	for i := 0; i < n; i++ {
		copy(x.Row(i), values[i:i+w])
		y[i] = values[i+w]
	}
	return x, y
}

// featureStats is the population mean and standard deviation of the
// flattened features, std floored at minStd.
func featureStats(features []float64) (mean, std float64) {
	if len(features) == 0 {
		return 0, 1
	}
	for _, v := range features {
		mean += v
	}
	mean /= float64(len(features))
	var ss float64
	for _, v := range features {
		d := v - mean
		ss += d * d
	}
	std = math.Sqrt(ss / float64(len(features)))
	if std < minStd {
		std = minStd
	}
	return mean, std
}

func normalize(v []float64, mean, std float64) {
	for i := range v {
		v[i] = (v[i] - mean) / std
	}
}

func clampPrediction(p float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	return p
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}
