// Package insights turns a flat list of entries into ranked, per-category
// spending insights: monthly aggregation, the lookback window, a small
// learned forecast per category and the composed display records.
package insights

import (
	"github.com/shopspring/decimal"

	"budgetlens/internal/core"
)

// Totals is the sparse category -> month -> amount view of the expenses.
// A month missing from a category map means zero.
type Totals struct {
	ByCategory map[string]map[core.MonthKey]float64
	// Order lists categories by first appearance in the entry list.
	Order []string
	// Ignored counts expenses dropped for an unparseable date.
	Ignored int
}

// Aggregate sums expense amounts by category and month. Income entries and
// expenses without a valid date are skipped.
func Aggregate(entries []core.Entry) Totals {
	sums := make(map[string]map[core.MonthKey]decimal.Decimal)
	t := Totals{ByCategory: make(map[string]map[core.MonthKey]float64)}

	for _, e := range entries {
		exp, ok := e.(core.Expense)
		if !ok {
			continue
		}
		key, ok := exp.MonthKey()
		if !ok {
			t.Ignored++
			continue
		}
		cat := exp.CategoryOrDefault()
		months, seen := sums[cat]
		if !seen {
			months = make(map[core.MonthKey]decimal.Decimal)
			sums[cat] = months
			t.Order = append(t.Order, cat)
		}
		amount := exp.Amount
		if amount.IsNegative() {
			amount = decimal.Zero
		}
		months[key] = months[key].Add(amount)
	}

	for cat, months := range sums {
		out := make(map[core.MonthKey]float64, len(months))
		for k, v := range months {
			out[k] = v.InexactFloat64()
		}
		t.ByCategory[cat] = out
	}
	return t
}

// Dense materializes monthly over window, zero-filling absent months.
func Dense(monthly map[core.MonthKey]float64, window []core.MonthKey) []float64 {
	values := make([]float64, len(window))
	for i, k := range window {
		values[i] = monthly[k]
	}
	return values
}

// Series is Dense paired with its month keys, for charting.
func Series(monthly map[core.MonthKey]float64, window []core.MonthKey) []core.SeriesPoint {
	points := make([]core.SeriesPoint, len(window))
	for i, k := range window {
		points[i] = core.SeriesPoint{Month: k, Value: monthly[k]}
	}
	return points
}
