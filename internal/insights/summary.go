package insights

import (
	"github.com/shopspring/decimal"

	"budgetlens/internal/core"
)

var (
	lowBalanceShare      = decimal.RequireFromString("0.30")
	criticalBalanceShare = decimal.RequireFromString("0.15")
)

// Summarize balances the viewed month: expenses dated in it against incomes
// recorded for it. Bi-weekly income is paid twice in a month and counts
// double. The warning is set only when there is income.
func Summarize(entries []core.Entry, month0, year int) core.MonthlySummary {
	key := core.NewMonthKey(year, month0)
	var expenses, income decimal.Decimal

	for _, e := range entries {
		switch v := e.(type) {
		case core.Expense:
			if k, ok := v.MonthKey(); ok && k == key && v.Amount.IsPositive() {
				expenses = expenses.Add(v.Amount)
			}
		case core.Income:
			if v.Month != month0 || v.Year != year || !v.Amount.IsPositive() {
				continue
			}
			amount := v.Amount
			if v.Frequency == core.Biweekly {
				amount = amount.Mul(decimal.NewFromInt(2))
			}
			income = income.Add(amount)
		}
	}

	net := income.Sub(expenses)
	s := core.MonthlySummary{
		Month:         key,
		TotalExpenses: expenses.InexactFloat64(),
		TotalIncome:   income.InexactFloat64(),
		Net:           net.InexactFloat64(),
	}
	if income.IsPositive() {
		switch {
		case net.LessThanOrEqual(income.Mul(criticalBalanceShare)):
			s.Warning = core.WarningCritical
		case net.LessThanOrEqual(income.Mul(lowBalanceShare)):
			s.Warning = core.WarningLow
		}
	}
	return s
}
