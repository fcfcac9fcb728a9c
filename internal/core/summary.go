package core

// BalanceWarning grades how little of the month's income is left.
type BalanceWarning string

const (
	WarningNone BalanceWarning = ""
	// WarningLow: net is at most 30% of income.
	WarningLow BalanceWarning = "low"
	// WarningCritical: net is at most 15% of income.
	WarningCritical BalanceWarning = "critical"
)

// MonthlySummary is the income and expense balance of one month.
type MonthlySummary struct {
	Month         MonthKey       `json:"month"`
	TotalExpenses float64        `json:"total_expenses"`
	TotalIncome   float64        `json:"total_income"`
	Net           float64        `json:"net"`
	Warning       BalanceWarning `json:"warning,omitempty"`
}

// Message is the text shown with the warning, or "" when there is none.
func (w BalanceWarning) Message() string {
	switch w {
	case WarningLow:
		return "Caution: your net balance is low (at most 30% of income). Consider reviewing expenses."
	case WarningCritical:
		return "Alert: your net balance is very low (at most 15% of income). Reduce expenses or increase income."
	}
	return ""
}
