package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetlens/internal/amqp"
	"budgetlens/internal/cache"
	"budgetlens/internal/cli"
	apphttp "budgetlens/internal/http"
	"budgetlens/internal/insights"
	"budgetlens/internal/log"
	"budgetlens/internal/services"
)

const (
	janitorInterval = time.Minute
	serviceName     = "budgetlens"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, os.Stderr), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, nil)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	b, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, log.FieldBackend, cfg.DataBackend)
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	amqpClient, err := cli.ConnectAMQP(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without broker", log.FieldError, err)
	}

	reports := cache.NewReports(cfg.ReportCacheSize, cfg.ReportCacheTTL)
	hub := apphttp.NewHub(cfg.CurrencySymbol, logger)
	publishers := insights.Publishers{reports, hub}
	// Left as a nil interface when there is no broker.
	var notifier services.ChangeNotifier
	if amqpClient != nil {
		publishers = append(publishers, amqpClient)
		notifier = amqpClient
		defer amqpClient.Close()
	}

	runner := insights.NewRunner(insights.RunnerConfig{
		Forecaster:     insights.NewForecaster(cfg.MinDataPoints, logger),
		CurrencySymbol: cfg.CurrencySymbol,
		Publisher:      publishers,
		Logger:         logger,
	})
	insightSvc := services.NewInsightService(b.Store, runner, reports, services.InsightServiceConfig{
		LookbackMonths: cfg.LookbackMonths,
		MinDataPoints:  cfg.MinDataPoints,
	}, logger)
	entrySvc := services.NewEntryService(b.Store, notifier, serviceName, logger)

	// Writes invalidate synchronously; the recompute runs in the loop below,
	// coalescing bursts of changes into one run.
	changes := make(chan *amqp.EntriesChangedMessage, 1)
	entrySvc.OnChange(func(ctx context.Context, msg *amqp.EntriesChangedMessage) error {
		insightSvc.Invalidate(ctx)
		select {
		case changes <- msg:
		default:
		}
		return nil
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Entries:        entrySvc,
		Insights:       insightSvc,
		Hub:            hub,
		CurrencySymbol: cfg.CurrencySymbol,
		Ready:          b.Ready,
	}, logger)
	janitor := cache.NewJanitor(logger, reports)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting budgetlens server",
			"port", cfg.Port,
			log.FieldBackend, b.Type.String(),
			"amqp_enabled", amqpClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		janitor.Run(gctx, janitorInterval)
		return nil
	})
	g.Go(func() error {
		if _, err := insightSvc.Refresh(gctx, insightSvc.DefaultParams()); err != nil && gctx.Err() == nil {
			logger.Warn("Startup insights run failed", log.FieldError, err)
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case msg := <-changes:
				if err := insightSvc.HandleEntriesChanged(gctx, msg); err != nil && gctx.Err() == nil {
					logger.Error("Recompute after change failed", log.FieldError, err)
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
