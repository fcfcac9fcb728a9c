// Package cli holds the startup steps shared by the budgetlens commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budgetlens/internal/amqp"
	"budgetlens/internal/backend"
	"budgetlens/internal/config"
	"budgetlens/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile(filenames ...string) {
	_ = godotenv.Load(filenames...)
}

// LoadAndValidateConfig reads the environment and validates the result.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, out io.Writer) *log.Logger {
	lc := log.DefaultConfig()
	if out != nil {
		lc.Output = out
	}
	if cfg != nil {
		lc.Level = log.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	slog.SetDefault(logger.Logger)
	return logger
}

// Fatal logs err and exits with status 1.
func Fatal(logger *log.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{log.FieldError, err}, args...)...)
	os.Exit(1)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// OpenBackend builds the entry store selected by cfg.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.Backend, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	b, err := backend.NewFactory(logger).Create(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bc.Type, err)
	}
	return b, nil
}

// ConnectAMQP dials the broker when AMQP_URL is set. It returns nil, nil
// otherwise.
func ConnectAMQP(ctx context.Context, cfg *config.Config, logger *log.Logger) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		return nil, nil
	}
	client, err := amqp.NewClient(ctx, amqp.Config{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client, nil
}
