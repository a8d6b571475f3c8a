// Package scheduler contains the two periodic actions a worker process
// drives against the store: the scheduler tick (C5) and the claim/
// dispatch/ack loop (C6), plus the stale/cleanup sweep (C7) run
// alongside them.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ridgeback/jobqueue/internal/cron"
	"github.com/ridgeback/jobqueue/internal/domain"
	"github.com/ridgeback/jobqueue/internal/metrics"
	"github.com/ridgeback/jobqueue/internal/repository"
)

// Tick is the scheduler tick (C5): promote due one-shot delayed jobs,
// then spawn exactly one instance per due recurring template and
// advance its NextRunAt. The Worker invokes it at the top of its poll
// cycle, at most once per tick interval (§4.5).
type Tick struct {
	repo   repository.JobRepository
	logger *slog.Logger
}

func NewTick(repo repository.JobRepository, logger *slog.Logger) *Tick {
	return &Tick{repo: repo, logger: logger.With("component", "tick")}
}

// Run executes one tick. An error here means step 1 or the outer step 2
// query failed outright — the caller (Worker) treats that as a
// tick-level store error and backs off (§4.5 step 3). A failure spawning
// or advancing one due recurring parent is logged and does not abort the
// rest of the tick or propagate as an error (§4.5 step 2c).
func (t *Tick) Run(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	now := time.Now()

	promoted, err := t.repo.PromoteDueDelayed(ctx, now)
	if err != nil {
		return err
	}
	if promoted > 0 {
		metrics.DelayedPromotedTotal.Add(float64(promoted))
		t.logger.Debug("promoted due delayed jobs", "count", promoted)
	}

	due, err := t.repo.FindDueRecurring(ctx, now)
	if err != nil {
		return err
	}

	for _, parent := range due {
		t.spawnOne(ctx, parent, now)
	}

	return nil
}

func (t *Tick) spawnOne(ctx context.Context, parent *domain.Job, now time.Time) {
	child, err := t.repo.SpawnInstance(ctx, parent)
	if err != nil {
		t.logger.Error("spawn recurring instance", "parent_id", parent.ID, "error", err)
		return
	}

	nextRunAt, err := cron.Next(*parent.CronExpression, now)
	if err != nil {
		t.logger.Error("compute next run", "parent_id", parent.ID, "cron_expression", *parent.CronExpression, "error", err)
		return
	}

	if err := t.repo.AdvanceRecurring(ctx, parent.ID, now, nextRunAt); err != nil {
		t.logger.Error("advance recurring template", "parent_id", parent.ID, "error", err)
		return
	}

	metrics.RecurringSpawnedTotal.Inc()
	t.logger.Info("spawned recurring instance",
		"parent_id", parent.ID, "child_id", child.ID, "next_run_at", nextRunAt)
}
