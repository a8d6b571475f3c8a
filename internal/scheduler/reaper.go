package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ridgeback/jobqueue/internal/metrics"
	"github.com/ridgeback/jobqueue/internal/usecase"
)

// Reaper periodically runs the two admin recovery sweeps (§4.7):
// ResetStale reclaims abandoned processing rows, Cleanup deletes old
// terminal rows. It runs independently of the worker loop's own tick so
// a busy worker never starves recovery.
type Reaper struct {
	admin        *usecase.AdminUsecase
	logger       *slog.Logger
	interval     time.Duration
	staleAfter   time.Duration
	cleanupAfter time.Duration
}

func NewReaper(admin *usecase.AdminUsecase, logger *slog.Logger, interval, staleAfter, cleanupAfter time.Duration) *Reaper {
	return &Reaper{
		admin:        admin,
		logger:       logger.With("component", "reaper"),
		interval:     interval,
		staleAfter:   staleAfter,
		cleanupAfter: cleanupAfter,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "stale_after", r.staleAfter, "cleanup_after", r.cleanupAfter)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	reset, err := r.admin.ResetStale(ctx, r.staleAfter)
	if err != nil {
		r.logger.Error("reset stale", "error", err)
	} else if reset > 0 {
		metrics.StaleResetTotal.Add(float64(reset))
		r.logger.Info("reset stale rows", "count", reset)
	}

	deleted, err := r.admin.Cleanup(ctx, r.cleanupAfter)
	if err != nil {
		r.logger.Error("cleanup", "error", err)
	} else if deleted > 0 {
		metrics.CleanupDeletedTotal.Add(float64(deleted))
		r.logger.Info("cleaned up terminal rows", "count", deleted)
	}
}
