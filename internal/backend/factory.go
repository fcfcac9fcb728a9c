package backend

import (
	"context"
	"fmt"

	"budgetlens/internal/entries/google"
	"budgetlens/internal/entries/memory"
	"budgetlens/internal/log"
	"budgetlens/internal/storage"
	"budgetlens/internal/storage/postgres"
)

type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create validates config and opens the selected store.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		b   *Backend
		err error
	)
	switch config.Type {
	case Memory:
		b, err = f.createMemory(config)
	case SQLite:
		b, err = f.createSQLite(config)
	case Postgres:
		b, err = f.createPostgres(ctx, config)
	case Sheets:
		b, err = f.createSheets(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	b.Type = config.Type
	if b.Ready == nil {
		b.Ready = func(context.Context) error { return nil }
	}
	if b.Cleanup == nil {
		b.Cleanup = func() error { return nil }
	}
	return b, nil
}

func (f *DefaultFactory) createMemory(config Config) (*Backend, error) {
	if config.EntriesFile == "" {
		f.logger.Info("Initialized memory backend")
		return &Backend{Store: memory.New()}, nil
	}
	store, err := memory.NewFromFile(config.EntriesFile)
	if err != nil {
		return nil, fmt.Errorf("load entries file: %w", err)
	}
	f.logger.Info("Initialized memory backend",
		"entries_file", config.EntriesFile,
		log.FieldEntries, store.Len())
	return &Backend{Store: store}, nil
}

func (f *DefaultFactory) createSQLite(config Config) (*Backend, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Backend{Store: repo, Ready: repo.Ping, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgres(ctx context.Context, config Config) (*Backend, error) {
	store, err := postgres.New(ctx, postgres.Config{
		DSN:         config.PostgresDSN,
		MaxPoolSize: config.PostgresMaxConns,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
	}
	f.logger.Info("Initialized postgres backend", "max_conns", config.PostgresMaxConns)
	return &Backend{
		Store: store,
		Ready: store.Ping,
		Cleanup: func() error {
			store.Close()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createSheets(ctx context.Context, config Config) (*Backend, error) {
	client, err := google.New(ctx, google.Config{
		SpreadsheetID: config.SpreadsheetID,
		SheetName:     config.SheetName,
		Credentials:   config.Credentials,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	if err := client.EnsureHeader(ctx); err != nil {
		f.logger.Warn("Could not verify sheet header", log.FieldError, err)
	}
	f.logger.Info("Initialized Google Sheets backend")
	return &Backend{Store: client}, nil
}
