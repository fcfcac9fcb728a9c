package insights

import (
	"fmt"
	"math"
	"strings"

	"budgetlens/internal/core"
)

// DisplayText renders a record as a single line, e.g.
//
//	Food: ₱500.00 vs ₱166.67 (6-mo avg) — +200.0% — 🔴 45% higher than predicted (₱344.12)
//
// The forecast part is present only for trained records.
func DisplayText(symbol string, lookback int, rec core.InsightRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s vs %s (%d-mo avg) — %s",
		rec.Category,
		core.FormatAmount(symbol, rec.CurrentValue),
		core.FormatAmount(symbol, rec.WindowAverage),
		lookback,
		signedPct(rec.PercentChangeVsAverage))

	if !rec.Forecast.Trained {
		return b.String()
	}
	predicted := core.FormatAmount(symbol, rec.Forecast.Prediction)
	switch Classify(rec.ForecastDiffPct) {
	case core.ComparisonHigher:
		fmt.Fprintf(&b, " — 🔴 %.0f%% higher than predicted (%s)", rec.ForecastDiffPct, predicted)
	case core.ComparisonLower:
		fmt.Fprintf(&b, " — 🟢 %.0f%% lower than predicted (%s)", math.Abs(rec.ForecastDiffPct), predicted)
	default:
		fmt.Fprintf(&b, " — close to prediction (%s)", predicted)
	}
	return b.String()
}

func signedPct(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.1f%%", v)
	}
	return fmt.Sprintf("%.1f%%", v)
}
