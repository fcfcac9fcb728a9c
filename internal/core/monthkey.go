package core

import (
	"fmt"
	"strconv"
	"time"
)

// MonthKey identifies a calendar month as YYYY-MM. Lexicographic order is
// chronological order.
type MonthKey string

// NewMonthKey builds a key from a year and a zero-based month. Months outside
// 0-11 roll over into the neighbouring years.
func NewMonthKey(year, month0 int) MonthKey {
	t := time.Date(year, time.Month(month0+1), 1, 0, 0, 0, 0, time.UTC)
	return MonthKey(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// ParseMonthKey validates s and returns it as a MonthKey.
func ParseMonthKey(s string) (MonthKey, error) {
	if _, _, err := MonthKey(s).split(); err != nil {
		return "", err
	}
	return MonthKey(s), nil
}

// YearMonth returns the year and the zero-based month.
func (k MonthKey) YearMonth() (year, month0 int, err error) {
	return k.split()
}

// AddMonths steps n months forward (or backward when n is negative).
func (k MonthKey) AddMonths(n int) (MonthKey, error) {
	y, m, err := k.split()
	if err != nil {
		return "", err
	}
	return NewMonthKey(y, m+n), nil
}

// Time returns the first instant of the month in UTC.
func (k MonthKey) Time() (time.Time, error) {
	y, m, err := k.split()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, time.Month(m+1), 1, 0, 0, 0, 0, time.UTC), nil
}

func (k MonthKey) String() string { return string(k) }

func (k MonthKey) split() (int, int, error) {
	s := string(k)
	if len(s) != 7 || s[4] != '-' {
		return 0, 0, fmt.Errorf("month key %q: want YYYY-MM", s)
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, 0, fmt.Errorf("month key %q: %w", s, err)
	}
	m, err := strconv.Atoi(s[5:])
	if err != nil {
		return 0, 0, fmt.Errorf("month key %q: %w", s, err)
	}
	if m < 1 || m > 12 {
		return 0, 0, fmt.Errorf("month key %q: %w", s, ErrInvalidMonth)
	}
	return y, m - 1, nil
}
