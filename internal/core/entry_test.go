package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewMonthKey(t *testing.T) {
	cases := []struct {
		year, month0 int
		want         MonthKey
	}{
		{2024, 0, "2024-01"},
		{2024, 11, "2024-12"},
		{2024, -1, "2023-12"},
		{2024, 12, "2025-01"},
		{2024, -13, "2022-12"},
		{987, 4, "0987-05"},
	}
	for _, tc := range cases {
		if got := NewMonthKey(tc.year, tc.month0); got != tc.want {
			t.Fatalf("NewMonthKey(%d, %d) = %s, want %s", tc.year, tc.month0, got, tc.want)
		}
	}
}

func TestMonthKeyAddMonthsAndParse(t *testing.T) {
	k, err := ParseMonthKey("2024-01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	prev, err := k.AddMonths(-2)
	if err != nil || prev != "2023-11" {
		t.Fatalf("AddMonths(-2) = %s, %v", prev, err)
	}
	y, m, err := prev.YearMonth()
	if err != nil || y != 2023 || m != 10 {
		t.Fatalf("YearMonth = %d, %d, %v", y, m, err)
	}
	for _, bad := range []string{"2024-13", "2024-00", "24-01", "2024/01", "abcd-ef"} {
		if _, err := ParseMonthKey(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
	if MonthKey("2023-12") >= MonthKey("2024-01") {
		t.Fatalf("lexicographic order must follow chronology")
	}
}

func TestExpenseMonthKey(t *testing.T) {
	cases := []struct {
		date string
		want MonthKey
		ok   bool
	}{
		{"2024-03-05", "2024-03", true},
		{"2024-01-01", "2024-01", true},
		{"2023-12-31T23:30:00-05:00", "2023-12", true},
		{"2024-02-30", "", false},
		{"not a date", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Expense{Date: tc.date}.MonthKey()
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%q: got (%s, %v), want (%s, %v)", tc.date, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExpenseCategoryOrDefault(t *testing.T) {
	if got := (Expense{}).CategoryOrDefault(); got != Uncategorized {
		t.Fatalf("expected %q, got %q", Uncategorized, got)
	}
	if got := (Expense{Category: "  "}).CategoryOrDefault(); got != Uncategorized {
		t.Fatalf("blank category should default, got %q", got)
	}
	if got := (Expense{Category: "Food"}).CategoryOrDefault(); got != "Food" {
		t.Fatalf("expected Food, got %q", got)
	}
}

func TestValidateEntry(t *testing.T) {
	good := []Entry{
		Expense{Date: "2025-01-01", Amount: decimal.NewFromInt(1)},
		Expense{Date: "2025-01-01", Amount: decimal.Zero},
		Income{Month: 11, Year: 2025, Amount: decimal.NewFromInt(100), Frequency: Monthly},
	}
	for i, e := range good {
		if err := ValidateEntry(e); err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
	}

	bads := []struct {
		e    Entry
		want error
	}{
		{Expense{Date: "2025-13-01"}, ErrInvalidDate},
		{Expense{Date: "2025-01-01", Amount: decimal.NewFromInt(-1)}, ErrInvalidAmount},
		{Income{Month: 12}, ErrInvalidMonth},
		{Income{Month: 1, Frequency: "hourly"}, ErrInvalidFrequency},
	}
	for i, tc := range bads {
		if err := ValidateEntry(tc.e); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestEntryRecordToEntry(t *testing.T) {
	var recs []EntryRecord
	payload := `[
		{"type":"expense","amount":"12.50","date":"2024-01-05","category":"Food"},
		{"type":"expense","amount":7,"date":"2024-01-06"},
		{"type":"expense","amount":"abc","date":"2024-01-07"},
		{"type":"income","amount":12000,"frequency":"monthly","month":0,"year":2024}
	]`
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var got []Entry
	for _, r := range recs {
		e, err := r.ToEntry()
		if err != nil {
			t.Fatalf("ToEntry: %v", err)
		}
		got = append(got, e)
	}

	if exp := got[0].(Expense); exp.Amount.String() != "12.5" || exp.Category != "Food" {
		t.Fatalf("unexpected first expense: %+v", exp)
	}
	if exp := got[1].(Expense); exp.Amount.String() != "7" {
		t.Fatalf("numeric amount not decoded: %+v", exp)
	}
	if exp := got[2].(Expense); !exp.Amount.IsZero() {
		t.Fatalf("non-numeric amount should coerce to zero: %+v", exp)
	}
	if inc := got[3].(Income); inc.Year != 2024 || inc.Month != 0 || inc.Kind() != KindIncome {
		t.Fatalf("unexpected income: %+v", inc)
	}

	if _, err := (EntryRecord{Type: "transfer"}).ToEntry(); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestRecordOfRoundTrip(t *testing.T) {
	in := Expense{ID: "x", Amount: decimal.RequireFromString("3.25"), Date: "2024-02-01", Category: "Fuel"}
	out, err := RecordOf(in).ToEntry()
	if err != nil {
		t.Fatalf("ToEntry: %v", err)
	}
	exp, ok := out.(Expense)
	if !ok || exp.ID != "x" || !exp.Amount.Equal(in.Amount) || exp.Date != in.Date {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
