package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

const (
	Monthly  Frequency = "monthly"
	Yearly   Frequency = "yearly"
	Weekly   Frequency = "weekly"
	OneTime  Frequency = "once"
	Biweekly Frequency = "biweekly"
)

// Uncategorized is used for expenses recorded without a category.
const Uncategorized = "Uncategorized"

const isoDate = "2006-01-02"

type (
	Kind string

	Frequency string

	// Entry is either an Expense or an Income. The set of implementations is closed.
	Entry interface {
		Kind() Kind
		entry()
	}

	Expense struct {
		ID          string
		Amount      decimal.Decimal
		Date        string // YYYY-MM-DD, local calendar
		Category    string
		Description string
	}

	Income struct {
		ID        string
		Amount    decimal.Decimal
		Frequency Frequency
		Month     int // 0-11
		Year      int
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrUnknownKind        = errors.New("unknown entry kind")
)

func (Expense) Kind() Kind { return KindExpense }
func (Expense) entry()     {}

func (Income) Kind() Kind { return KindIncome }
func (Income) entry()     {}

// CategoryOrDefault returns the category label, falling back to Uncategorized.
func (e Expense) CategoryOrDefault() string {
	if c := strings.TrimSpace(e.Category); c != "" {
		return c
	}
	return Uncategorized
}

// CalendarDate parses the expense date as written, without timezone conversion.
// Full timestamps are accepted and truncated to their date part.
func (e Expense) CalendarDate() (time.Time, bool) {
	s := strings.TrimSpace(e.Date)
	if len(s) > len(isoDate) && (s[len(isoDate)] == 'T' || s[len(isoDate)] == ' ') {
		s = s[:len(isoDate)]
	}
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MonthKey returns the month the expense falls in.
func (e Expense) MonthKey() (MonthKey, bool) {
	t, ok := e.CalendarDate()
	if !ok {
		return "", false
	}
	return NewMonthKey(t.Year(), int(t.Month())-1), true
}

func (e Expense) Validate() error {
	if _, ok := e.CalendarDate(); !ok {
		return ErrInvalidDate
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if len(e.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (i Income) Validate() error {
	if i.Month < 0 || i.Month > 11 {
		return ErrInvalidMonth
	}
	if i.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	switch i.Frequency {
	case Monthly, Yearly, Weekly, Biweekly, OneTime, "":
	default:
		return ErrInvalidFrequency
	}
	return nil
}

// ValidateEntry dispatches to the payload's Validate method.
func ValidateEntry(e Entry) error {
	switch v := e.(type) {
	case Expense:
		return v.Validate()
	case Income:
		return v.Validate()
	default:
		return ErrUnknownKind
	}
}
