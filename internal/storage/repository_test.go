package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"budgetlens/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "budgetlens.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	exp := core.Expense{
		Amount:      decimal.RequireFromString("12.34"),
		Date:        "2024-03-05",
		Category:    "Food",
		Description: "groceries",
	}
	inc := core.Income{Amount: decimal.NewFromInt(12000), Frequency: core.Monthly, Month: 2, Year: 2024}

	id1, err := repo.Add(ctx, exp)
	if err != nil {
		t.Fatalf("Add expense: %v", err)
	}
	id2, err := repo.Add(ctx, inc)
	if err != nil {
		t.Fatalf("Add income: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("ids must differ: %s %s", id1, id2)
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	e, ok := got[0].(core.Expense)
	if !ok || e.ID != id1 || !e.Amount.Equal(exp.Amount) || e.Date != exp.Date || e.Category != "Food" || e.Description != "groceries" {
		t.Fatalf("unexpected expense %+v", got[0])
	}
	i, ok := got[1].(core.Income)
	if !ok || i.Month != 2 || i.Year != 2024 || i.Frequency != core.Monthly || !i.Amount.Equal(inc.Amount) {
		t.Fatalf("unexpected income %+v", got[1])
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestSQLiteRepositoryRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Add(context.Background(), core.Expense{Date: "2024-02-30"}); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second migration: %v", err)
	}
}
