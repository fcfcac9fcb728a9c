package main

import (
	"context"
	"errors"
	"os"

	"budgetlens/internal/cli"
	"budgetlens/internal/insights"
	"budgetlens/internal/log"
	"budgetlens/internal/services"
	"budgetlens/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err == nil {
		err = cfg.RequireAMQP()
	}
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, os.Stderr), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, nil).WithComponent(log.ComponentWorker)
	logger.Info("Starting budgetlens-worker")

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	b, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, log.FieldBackend, cfg.DataBackend)
	}
	defer b.Cleanup()

	amqpClient, err := cli.ConnectAMQP(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	runner := insights.NewRunner(insights.RunnerConfig{
		Forecaster:     insights.NewForecaster(cfg.MinDataPoints, logger),
		CurrencySymbol: cfg.CurrencySymbol,
		Publisher:      amqpClient,
		Logger:         logger,
	})
	insightSvc := services.NewInsightService(b.Store, runner, nil, services.InsightServiceConfig{
		LookbackMonths: cfg.LookbackMonths,
		MinDataPoints:  cfg.MinDataPoints,
	}, logger)

	w := worker.NewInsightWorker(amqpClient, insightSvc, logger)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cli.Fatal(logger, "Message consumption failed", err)
	}
	logger.Info("Worker stopped gracefully")
}
