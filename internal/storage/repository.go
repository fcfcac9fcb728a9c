package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"budgetlens/internal/core"
	"budgetlens/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the embedded entry store.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
	}, nil
}

// Ping checks the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Add implements entries.Writer.
func (r *SQLiteRepository) Add(ctx context.Context, e core.Entry) (string, error) {
	if err := core.ValidateEntry(e); err != nil {
		return "", err
	}
	id, err := r.queries.CreateEntry(ctx, createParams(e))
	if err != nil {
		return "", fmt.Errorf("create entry: %w", err)
	}
	ref := strconv.FormatInt(id, 10)
	r.logger.InfoContext(ctx, "Entry saved to SQLite", log.NewFields().WithEntry(ref, string(e.Kind())).ToSlice()...)
	return ref, nil
}

// List implements entries.Lister.
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Entry, error) {
	rows, err := r.queries.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping unreadable entry row", "id", row.ID, log.FieldError, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.queries.CountEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func createParams(e core.Entry) CreateEntryParams {
	switch v := e.(type) {
	case core.Expense:
		return CreateEntryParams{
			Kind:        string(core.KindExpense),
			Amount:      v.Amount.String(),
			Date:        nullString(v.Date),
			Category:    nullString(v.Category),
			Description: nullString(v.Description),
		}
	case core.Income:
		return CreateEntryParams{
			Kind:      string(core.KindIncome),
			Amount:    v.Amount.String(),
			Frequency: nullString(string(v.Frequency)),
			Month:     sql.NullInt64{Int64: int64(v.Month), Valid: true},
			Year:      sql.NullInt64{Int64: int64(v.Year), Valid: true},
		}
	default:
		return CreateEntryParams{}
	}
}

func (row EntryRow) toEntry() (core.Entry, error) {
	id := strconv.FormatInt(row.ID, 10)
	amount := core.CoerceAmount(row.Amount)
	switch core.Kind(row.Kind) {
	case core.KindExpense:
		return core.Expense{
			ID:          id,
			Amount:      amount,
			Date:        row.Date.String,
			Category:    row.Category.String,
			Description: row.Description.String,
		}, nil
	case core.KindIncome:
		return core.Income{
			ID:        id,
			Amount:    amount,
			Frequency: core.Frequency(row.Frequency.String),
			Month:     int(row.Month.Int64),
			Year:      int(row.Year.Int64),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, row.Kind)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
