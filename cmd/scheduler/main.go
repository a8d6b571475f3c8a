// scheduler runs WorkerCount independent worker loops (C6), each driving
// its own scheduler tick (C5), against one shared store. Registering job
// classes is the embedding application's responsibility (§9 "Design
// notes"); this binary registers the bundled example handlers from
// internal/jobs as a demonstration.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ridgeback/jobqueue/config"
	"github.com/ridgeback/jobqueue/internal/health"
	"github.com/ridgeback/jobqueue/internal/infrastructure/postgres"
	"github.com/ridgeback/jobqueue/internal/jobs"
	ctxlog "github.com/ridgeback/jobqueue/internal/log"
	"github.com/ridgeback/jobqueue/internal/metrics"
	"github.com/ridgeback/jobqueue/internal/registry"
	"github.com/ridgeback/jobqueue/internal/scheduler"
	"github.com/ridgeback/jobqueue/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	jobRepo := postgres.NewJobRepository(pool)
	attemptRepo := postgres.NewAttemptRepository(pool)

	queueUsecase := usecase.NewQueueUsecase(jobRepo)
	adminUsecase := usecase.NewAdminUsecase(jobRepo)

	reg := registry.New(queueUsecase)
	reg.Define(jobs.HTTPRequestClass, jobs.NewHTTPRequestHandler(logger).Handle)

	pollInterval := time.Duration(cfg.PollIntervalSec) * time.Second
	tickInterval := time.Duration(cfg.TickIntervalSec) * time.Second

	for i := 0; i < cfg.WorkerCount; i++ {
		worker := scheduler.NewWorker(cfg.DefaultQueue, jobRepo, attemptRepo, reg, logger, pollInterval, tickInterval)
		go worker.Start(ctx)
	}
	logger.Info("workers started", "count", cfg.WorkerCount, "queue", cfg.DefaultQueue)

	reaper := scheduler.NewReaper(
		adminUsecase,
		logger,
		time.Duration(cfg.ReaperIntervalSec)*time.Second,
		time.Duration(cfg.StaleAfterSec)*time.Second,
		time.Duration(cfg.CleanupAfterHours)*time.Hour,
	)
	go reaper.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
