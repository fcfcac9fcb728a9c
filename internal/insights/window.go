package insights

import (
	"fmt"

	"budgetlens/internal/core"
)

// LookbackWindow returns lookback month keys ending at the viewed month
// (inclusive), oldest first.
func LookbackWindow(month0, year, lookback int) ([]core.MonthKey, error) {
	if lookback <= 0 || lookback > core.MaxLookbackMonths {
		return nil, fmt.Errorf("lookback %d: %w", lookback, core.ErrInvalidLookback)
	}
	if month0 < 0 || month0 > 11 {
		return nil, fmt.Errorf("viewed month %d: %w", month0, core.ErrInvalidMonth)
	}
	keys := make([]core.MonthKey, lookback)
	for i := 0; i < lookback; i++ {
		keys[lookback-1-i] = core.NewMonthKey(year, month0-i)
	}
	return keys, nil
}
