// Package backend selects and builds the entry store the rest of the
// application reads from and writes to.
package backend

import (
	"context"

	"budgetlens/internal/entries"
	"budgetlens/internal/entries/google"
)

// Type names a storage backend.
type Type string

const (
	Memory   Type = "memory"
	SQLite   Type = "sqlite"
	Postgres Type = "postgres"
	Sheets   Type = "sheets"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case Memory, SQLite, Postgres, Sheets:
		return true
	default:
		return false
	}
}

// Config holds what each backend needs. Only the fields of the selected
// Type are read.
type Config struct {
	Type Type

	// Memory: optional JSON-lines file loaded at startup.
	EntriesFile string

	SQLiteDBPath string

	PostgresDSN      string
	PostgresMaxConns int

	SpreadsheetID string
	SheetName     string
	Credentials   google.Credentials
}

// Backend is a ready entry store. Ready and Cleanup are never nil.
type Backend struct {
	Type    Type
	Store   entries.Store
	Ready   func(ctx context.Context) error
	Cleanup func() error
}

// Factory creates backends from configuration.
type Factory interface {
	Create(ctx context.Context, config Config) (*Backend, error)
}
