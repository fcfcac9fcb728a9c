package core

import (
	"errors"
	"fmt"
	"time"
)

const (
	ReasonInsufficientData SkipReason = "insufficient-data"
	ReasonNotEnoughWindows SkipReason = "not-enough-windows"
	ReasonTrainingFailed   SkipReason = "training-failed"
)

const (
	ComparisonNone   Comparison = ""
	ComparisonHigher Comparison = "higher"
	ComparisonLower  Comparison = "lower"
	ComparisonClose  Comparison = "close"
)

const (
	DefaultLookbackMonths = 6
	DefaultMinDataPoints  = 6

	MaxLookbackMonths = 120
	MaxViewedYear     = 9999
)

var (
	ErrInvalidLookback      = errors.New("lookback months out of range")
	ErrInvalidMinDataPoints = errors.New("min data points must be positive")
	ErrInvalidYear          = errors.New("year out of range")
)

type (
	SkipReason string

	Comparison string

	// ForecastResult is Trained (Prediction, WindowSize set) or Skipped (Reason set).
	ForecastResult struct {
		Trained    bool       `json:"trained"`
		Prediction float64    `json:"prediction,omitempty"`
		WindowSize int        `json:"window_size,omitempty"`
		Reason     SkipReason `json:"reason,omitempty"`
	}

	InsightRecord struct {
		Category               string         `json:"category"`
		CurrentValue           float64        `json:"current_value"`
		WindowAverage          float64        `json:"window_average"`
		PercentChangeVsAverage float64        `json:"percent_change_vs_average"`
		Flagged                bool           `json:"flagged"`
		Forecast               ForecastResult `json:"forecast"`
		ForecastDiffPct        float64        `json:"forecast_diff_pct"`
		Comparison             Comparison     `json:"comparison,omitempty"`
		DisplayText            string         `json:"display_text"`
	}

	// ModelInfo backs the "basis of this insight" indicator.
	ModelInfo struct {
		Trained    bool       `json:"trained"`
		WindowSize int        `json:"window_size,omitempty"`
		Reason     SkipReason `json:"reason,omitempty"`
	}

	SeriesPoint struct {
		Month MonthKey `json:"month"`
		Value float64  `json:"value"`
	}

	// Params selects the viewed month and how much history to analyze.
	Params struct {
		ViewedMonth    int `json:"viewed_month"` // 0-11
		ViewedYear     int `json:"viewed_year"`
		LookbackMonths int `json:"lookback_months"`
		MinDataPoints  int `json:"min_data_points"`
	}

	// Report is the unit published at the end of a pipeline run.
	Report struct {
		RunID       string                   `json:"run_id"`
		Params      Params                   `json:"params"`
		Window      []MonthKey               `json:"window"`
		Insights    []InsightRecord          `json:"insights"`
		Models      map[string]ModelInfo     `json:"models"`
		Series      map[string][]SeriesPoint `json:"series"`
		Summary     MonthlySummary           `json:"summary"`
		GeneratedAt time.Time                `json:"generated_at"`
		// Epoch is the entry-data epoch the report was computed from.
		Epoch uint64 `json:"-"`
	}
)

// Trained builds a successful forecast result.
func Trained(prediction float64, windowSize int) ForecastResult {
	return ForecastResult{Trained: true, Prediction: prediction, WindowSize: windowSize}
}

// Skipped builds a forecast result that fell back to basic statistics.
func Skipped(reason SkipReason) ForecastResult {
	return ForecastResult{Reason: reason}
}

// ModelInfo summarizes the result for the basis indicator.
func (f ForecastResult) ModelInfo() ModelInfo {
	if f.Trained {
		return ModelInfo{Trained: true, WindowSize: f.WindowSize}
	}
	return ModelInfo{Reason: f.Reason}
}

// Basis is the human-readable note shown next to an insight.
func (m ModelInfo) Basis() string {
	if m.Trained {
		return "ML model used for prediction."
	}
	return "Insufficient history — using basic statistics."
}

// DefaultParams views the month of now with default lookback settings.
func DefaultParams(now time.Time) Params {
	return Params{
		ViewedMonth:    int(now.Month()) - 1,
		ViewedYear:     now.Year(),
		LookbackMonths: DefaultLookbackMonths,
		MinDataPoints:  DefaultMinDataPoints,
	}
}

// WithDefaults fills zero-valued tuning fields.
func (p Params) WithDefaults() Params {
	if p.LookbackMonths == 0 {
		p.LookbackMonths = DefaultLookbackMonths
	}
	if p.MinDataPoints == 0 {
		p.MinDataPoints = DefaultMinDataPoints
	}
	return p
}

func (p Params) Validate() error {
	if p.ViewedMonth < 0 || p.ViewedMonth > 11 {
		return fmt.Errorf("viewed month %d: %w", p.ViewedMonth, ErrInvalidMonth)
	}
	if p.LookbackMonths <= 0 || p.LookbackMonths > MaxLookbackMonths {
		return fmt.Errorf("lookback %d: %w", p.LookbackMonths, ErrInvalidLookback)
	}
	if p.MinDataPoints <= 0 {
		return fmt.Errorf("min data points %d: %w", p.MinDataPoints, ErrInvalidMinDataPoints)
	}
	if p.ViewedYear < 0 || p.ViewedYear > MaxViewedYear {
		return fmt.Errorf("viewed year %d: %w", p.ViewedYear, ErrInvalidYear)
	}
	// The window must not reach before January of year 0.
	if p.ViewedYear*12+p.ViewedMonth < p.LookbackMonths-1 {
		return fmt.Errorf("lookback %d from %d: %w", p.LookbackMonths, p.ViewedYear, ErrInvalidYear)
	}
	return nil
}

// Key identifies the view for caching and run deduplication.
func (p Params) Key() string {
	return fmt.Sprintf("%s/%d/%d", NewMonthKey(p.ViewedYear, p.ViewedMonth), p.LookbackMonths, p.MinDataPoints)
}
