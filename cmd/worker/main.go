package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/printhub/printhub/internal/app"
	jobmetrics "github.com/printhub/printhub/internal/jobs"
	"github.com/printhub/printhub/internal/observability"
	"github.com/printhub/printhub/internal/shared"
	"github.com/printhub/printhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.StoreDriver != app.DriverPostgres {
		slog.Default().Error("worker requires STORE_DRIVER=postgres", slog.String("driver", cfg.StoreDriver))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	container, err := app.Build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}
	defer container.Close()

	missJob := jobs.NewResolutionMissJob(logger, jobMetrics)
	sweepJob := jobs.NewDeferredSweepJob(container.Store, cfg.DeferredSweepAfter, logger, jobMetrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:   shared.NewIdempotencyStore(container.Pool),
		Logger:  logger,
		Metrics: jobMetrics,
	}

	sweepTask, err := jobs.NewDeferredSweepTask("")
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Redis().AsynqOpt(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskResolutionMiss, Handler: missJob.Handle},
			{Type: jobs.TaskDeferredSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@hourly", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
