package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/ridgeback/jobqueue/internal/cron"
	"github.com/ridgeback/jobqueue/internal/domain"
	"github.com/ridgeback/jobqueue/internal/repository"
)

const (
	defaultStaleAfter   = 5 * time.Minute
	defaultCleanupAfter = 24 * time.Hour
)

// AdminUsecase is C7: cancel/pause/resume a job, plus the two recovery
// sweeps (reset-stale, cleanup) an embedding app can invoke directly or
// run periodically (internal/scheduler.Reaper does the latter).
type AdminUsecase struct {
	repo repository.JobRepository
}

func NewAdminUsecase(repo repository.JobRepository) *AdminUsecase {
	return &AdminUsecase{repo: repo}
}

// Cancel is allowed when status is scheduled or pending (§4.7).
func (u *AdminUsecase) Cancel(ctx context.Context, id int64) error {
	if err := u.repo.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel job %d: %w", id, err)
	}
	return nil
}

// Pause is allowed only on recurring templates.
func (u *AdminUsecase) Pause(ctx context.Context, id int64) error {
	if err := u.repo.Pause(ctx, id); err != nil {
		return fmt.Errorf("pause job %d: %w", id, err)
	}
	return nil
}

// Resume recomputes NextRunAt from the template's cron expression and
// clears the paused marker.
func (u *AdminUsecase) Resume(ctx context.Context, id int64) error {
	job, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get job %d: %w", id, err)
	}
	if !job.IsRecurring || job.CronExpression == nil || !job.Paused() {
		return fmt.Errorf("resume job %d: %w", id, domain.ErrIllegalTransition)
	}

	nextRunAt, err := cron.Next(*job.CronExpression, time.Now())
	if err != nil {
		return err
	}
	if err := u.repo.Resume(ctx, id, nextRunAt); err != nil {
		return fmt.Errorf("resume job %d: %w", id, err)
	}
	return nil
}

// ResetStale returns processing rows older than maxAge to pending. A
// zero maxAge uses the spec default of 5 minutes.
func (u *AdminUsecase) ResetStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = defaultStaleAfter
	}
	n, err := u.repo.ResetStale(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("reset stale: %w", err)
	}
	return n, nil
}

// Cleanup deletes terminal rows older than maxAge. A zero maxAge uses
// the spec default of 24 hours.
func (u *AdminUsecase) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = defaultCleanupAfter
	}
	n, err := u.repo.Cleanup(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return n, nil
}
