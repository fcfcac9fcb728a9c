// Package postgres provides a PostgreSQL entry store.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"budgetlens/internal/core"
	"budgetlens/internal/log"
)

//go:embed 001_create_entries.sql
var migrationSQL string

// Config holds the PostgreSQL store configuration.
type Config struct {
	DSN string
	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Store reads and writes entries in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// New connects, pings and migrates.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database)

	s := &Store{pool: pool, logger: logger}
	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

const insertEntry = `
	INSERT INTO entries (kind, amount, date, category, description, frequency, month, year)
	VALUES ($1, $2::numeric, $3::date, $4, $5, $6, $7, $8)
	RETURNING id
`

// Add implements entries.Writer.
func (s *Store) Add(ctx context.Context, e core.Entry) (string, error) {
	if err := core.ValidateEntry(e); err != nil {
		return "", err
	}
	var id int64
	if err := s.pool.QueryRow(ctx, insertEntry, insertArgs(e)...).Scan(&id); err != nil {
		return "", fmt.Errorf("inserting entry: %w", err)
	}
	ref := strconv.FormatInt(id, 10)
	s.logger.InfoContext(ctx, "Entry saved to PostgreSQL", log.NewFields().WithEntry(ref, string(e.Kind())).ToSlice()...)
	return ref, nil
}

// AddMany inserts all entries in one transaction using a pgx batch.
func (s *Store) AddMany(ctx context.Context, entries []core.Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	for i, e := range entries {
		if err := core.ValidateEntry(e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertEntry, insertArgs(e)...)
	}
	results := tx.SendBatch(ctx, batch)
	ids := make([]string, 0, len(entries))
	for i := range entries {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			results.Close()
			return nil, fmt.Errorf("inserting entry %d: %w", i, err)
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Wrote entry batch", "count", len(ids))
	return ids, nil
}

const selectEntries = `
	SELECT id, kind, amount::text, to_char(date, 'YYYY-MM-DD'), category, description, frequency, month, year
	FROM entries
	ORDER BY id
`

// List implements entries.Lister.
func (s *Store) List(ctx context.Context) ([]core.Entry, error) {
	rows, err := s.pool.Query(ctx, selectEntries)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		var (
			id                                     int64
			kind, amount                           string
			date, category, description, frequency *string
			month, year                            *int
		)
		if err := rows.Scan(&id, &kind, &amount, &date, &category, &description, &frequency, &month, &year); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		ref := strconv.FormatInt(id, 10)
		switch core.Kind(kind) {
		case core.KindExpense:
			out = append(out, core.Expense{
				ID:          ref,
				Amount:      core.CoerceAmount(amount),
				Date:        deref(date),
				Category:    deref(category),
				Description: deref(description),
			})
		case core.KindIncome:
			inc := core.Income{ID: ref, Amount: core.CoerceAmount(amount), Frequency: core.Frequency(deref(frequency))}
			if month != nil {
				inc.Month = *month
			}
			if year != nil {
				inc.Year = *year
			}
			out = append(out, inc)
		default:
			s.logger.WarnContext(ctx, "Skipping entry with unknown kind", "id", ref, log.FieldEntryKind, kind)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return out, nil
}

// Ping checks a pooled connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func insertArgs(e core.Entry) []any {
	switch v := e.(type) {
	case core.Expense:
		t, _ := v.CalendarDate()
		return []any{string(core.KindExpense), v.Amount.String(), t.Format("2006-01-02"), nilIfEmpty(v.Category), nilIfEmpty(v.Description), nil, nil, nil}
	case core.Income:
		return []any{string(core.KindIncome), v.Amount.String(), nil, nil, nil, nilIfEmpty(string(v.Frequency)), v.Month, v.Year}
	default:
		return nil
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
