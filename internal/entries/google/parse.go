package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetlens/internal/core"
)

// Sheet columns, one entry per row after the header:
//
//	A Type | B Date | C Category | D Amount | E Description | F Frequency | G Month (1-12) | H Year
var Header = []any{"Type", "Date", "Category", "Amount", "Description", "Frequency", "Month", "Year"}

const (
	colType = iota
	colDate
	colCategory
	colAmount
	colDescription
	colFrequency
	colMonth
	colYear
)

// Sheets serial dates count days from 1899-12-30.
var sheetsEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// parseRows converts value rows into entries. Rows with an unknown type are
// skipped and counted.
func parseRows(values [][]any) ([]core.Entry, int) {
	out := make([]core.Entry, 0, len(values))
	skipped := 0
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		e, ok := parseRow(row)
		if !ok {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, skipped
}

func parseRow(row []any) (core.Entry, bool) {
	amount := cellAmount(safeGet(row, colAmount))
	switch core.Kind(strings.ToLower(cellString(safeGet(row, colType)))) {
	case core.KindExpense:
		return core.Expense{
			Amount:      amount,
			Date:        cellDate(safeGet(row, colDate)),
			Category:    cellString(safeGet(row, colCategory)),
			Description: cellString(safeGet(row, colDescription)),
		}, true
	case core.KindIncome:
		inc := core.Income{
			Amount:    amount,
			Frequency: core.Frequency(strings.ToLower(cellString(safeGet(row, colFrequency)))),
		}
		if m, err := strconv.Atoi(cellString(safeGet(row, colMonth))); err == nil {
			inc.Month = m - 1
		}
		if y, err := strconv.Atoi(cellString(safeGet(row, colYear))); err == nil {
			inc.Year = y
		}
		return inc, true
	default:
		return nil, false
	}
}

// toRow renders an entry in sheet column order.
func toRow(e core.Entry) []any {
	switch v := e.(type) {
	case core.Expense:
		return []any{string(core.KindExpense), v.Date, v.Category, v.Amount.String(), v.Description, "", "", ""}
	case core.Income:
		return []any{string(core.KindIncome), "", "", v.Amount.String(), "", string(v.Frequency), v.Month + 1, v.Year}
	default:
		return nil
	}
}

func safeGet(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}

// cellString formats a cell without exponents so amounts stay parseable.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// cellAmount reads a numeric cell directly and text through the amount
// parser.
func cellAmount(v any) decimal.Decimal {
	if f, ok := v.(float64); ok {
		return core.AmountFromFloat(f)
	}
	return core.CoerceAmount(cellString(v))
}

// cellDate accepts ISO text or a serial date number.
func cellDate(v any) string {
	if f, ok := v.(float64); ok && f > 0 {
		days := math.Floor(f)
		return sheetsEpoch.AddDate(0, 0, int(days)).Format("2006-01-02")
	}
	return cellString(v)
}
