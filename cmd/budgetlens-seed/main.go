// Command budgetlens-seed writes the demo data set into the configured
// backend: a Food and a Transport expense plus a monthly income per month.
package main

import (
	"context"
	"os"

	"budgetlens/internal/amqp"
	"budgetlens/internal/cli"
	"budgetlens/internal/entries"
	"budgetlens/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, os.Stderr), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, nil).WithComponent(log.ComponentSeed)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	b, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, log.FieldBackend, cfg.DataBackend)
	}
	defer b.Cleanup()

	n, err := entries.Seed(ctx, b.Store, entries.SeedOptions{Months: cfg.SeedMonths})
	if err != nil {
		cli.Fatal(logger, "Seeding failed", err, "written", n)
	}
	logger.Info("Seeded demo entries",
		log.FieldEntries, n,
		log.FieldBackend, b.Type.String(),
		"months", cfg.SeedMonths)

	amqpClient, err := cli.ConnectAMQP(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Could not announce seeded entries", log.FieldError, err)
		return
	}
	if amqpClient == nil {
		return
	}
	defer amqpClient.Close()
	if err := amqpClient.PublishEntriesChanged(ctx, amqp.NewEntriesChangedMessage("", "", "seed")); err != nil {
		logger.Warn("Could not announce seeded entries", log.FieldError, err)
	}
}
