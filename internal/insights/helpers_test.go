package insights

import (
	"context"
	"math/rand"

	"github.com/shopspring/decimal"

	"budgetlens/internal/core"
)

func expense(date, category string, amount float64) core.Expense {
	return core.Expense{Date: date, Category: category, Amount: decimal.NewFromFloat(amount)}
}

// foodScenario is six months of Food ending at 2024-06: 100 x5 then 500.
func foodScenario() []core.Entry {
	amounts := []float64{100, 100, 100, 100, 100, 500}
	var entries []core.Entry
	for i, a := range amounts {
		key := core.NewMonthKey(2024, i)
		entries = append(entries, expense(string(key)+"-10", "Food", a))
	}
	return entries
}

func foodParams() core.Params {
	return core.Params{ViewedMonth: 5, ViewedYear: 2024, LookbackMonths: 6, MinDataPoints: 6}
}

func seeded(seed int64) func() *rand.Rand {
	return func() *rand.Rand { return rand.New(rand.NewSource(seed)) }
}

type stubPredictor struct {
	result core.ForecastResult
}

func (s stubPredictor) Forecast(context.Context, map[core.MonthKey]float64, []core.MonthKey) core.ForecastResult {
	return s.result
}

type predictorFunc func(ctx context.Context, monthly map[core.MonthKey]float64, window []core.MonthKey) core.ForecastResult

func (f predictorFunc) Forecast(ctx context.Context, monthly map[core.MonthKey]float64, window []core.MonthKey) core.ForecastResult {
	return f(ctx, monthly, window)
}
