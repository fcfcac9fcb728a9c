package insights

import (
	"context"
	"math"
	"sort"

	"budgetlens/internal/core"
	"budgetlens/internal/log"
)

const (
	// FlagThresholdPct is the deviation from the window average that flags
	// an insight.
	FlagThresholdPct = 10.0
	// ComparisonThresholdPct separates "close to prediction" from higher or
	// lower.
	ComparisonThresholdPct = 15.0
)

// Composer builds the ranked insight records for one window.
type Composer struct {
	Predictor      Predictor
	CurrencySymbol string
	logger         *log.Logger
}

func NewComposer(p Predictor, currencySymbol string, logger *log.Logger) *Composer {
	if currencySymbol == "" {
		currencySymbol = core.DefaultCurrencySymbol
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Composer{
		Predictor:      p,
		CurrencySymbol: currencySymbol,
		logger:         logger.WithComponent(log.ComponentInsights),
	}
}

// Compose produces one record per category in totals, forecasting the
// categories one after another. The only error is ctx's.
func (c *Composer) Compose(ctx context.Context, totals Totals, window []core.MonthKey) ([]core.InsightRecord, map[string]core.ModelInfo, error) {
	records := make([]core.InsightRecord, 0, len(totals.Order))
	models := make(map[string]core.ModelInfo, len(totals.Order))
	if len(window) == 0 {
		return records, models, nil
	}

	for _, cat := range totals.Order {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		monthly := totals.ByCategory[cat]
		rec := basicStats(cat, monthly, window)

		rec.Forecast = c.Predictor.Forecast(ctx, monthly, window)
		if rec.Forecast.Trained {
			rec.ForecastDiffPct = ForecastDiff(rec.CurrentValue, rec.Forecast.Prediction)
			rec.Comparison = Classify(rec.ForecastDiffPct)
		} else {
			c.logger.DebugContext(ctx, "Using basic statistics",
				log.FieldCategory, cat, log.FieldSkipReason, rec.Forecast.Reason)
		}
		rec.DisplayText = DisplayText(c.CurrencySymbol, len(window), rec)

		records = append(records, rec)
		models[cat] = rec.Forecast.ModelInfo()
	}

	// A run cancelled during the last forecast must not look complete.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	Rank(records)
	return records, models, nil
}

func basicStats(cat string, monthly map[core.MonthKey]float64, window []core.MonthKey) core.InsightRecord {
	values := Dense(monthly, window)
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	current := values[len(values)-1]
	pct := PercentChange(current, avg)
	return core.InsightRecord{
		Category:               cat,
		CurrentValue:           current,
		WindowAverage:          avg,
		PercentChangeVsAverage: pct,
		Flagged:                math.Abs(pct) >= FlagThresholdPct,
	}
}

// PercentChange is the change of current against average. A zero average
// reads as +100% when there is spending now and 0% otherwise.
func PercentChange(current, average float64) float64 {
	switch {
	case average > 0:
		return (current - average) / average * 100
	case current > 0:
		return 100
	default:
		return 0
	}
}

// ForecastDiff is how far current sits from the prediction, in percent.
func ForecastDiff(current, prediction float64) float64 {
	if prediction == 0 {
		return 0
	}
	return (current - prediction) / prediction * 100
}

func Classify(diffPct float64) core.Comparison {
	switch {
	case diffPct >= ComparisonThresholdPct:
		return core.ComparisonHigher
	case diffPct <= -ComparisonThresholdPct:
		return core.ComparisonLower
	default:
		return core.ComparisonClose
	}
}

// Rank orders records by absolute percent change, largest first. Ties keep
// their current order.
func Rank(records []core.InsightRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return math.Abs(records[i].PercentChangeVsAverage) > math.Abs(records[j].PercentChangeVsAverage)
	})
}
