package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ridgeback/jobqueue/internal/domain"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Insert(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	var created *domain.Job
	err := withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx, `
			INSERT INTO jobs (
				queue, payload, status, priority, max_attempts,
				scheduled_for, is_recurring, cron_expression, next_run_at, parent_job_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+jobColumns,
			job.Queue, job.Payload, job.Status, job.Priority, job.MaxAttempts,
			job.ScheduledFor, job.IsRecurring, job.CronExpression, job.NextRunAt, job.ParentJobID,
		)
		j, scanErr := scanJob(row)
		if scanErr != nil {
			return scanErr
		}
		created = j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return created, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Claim is the atomicity-critical operation (§5): a single UPDATE with a
// SKIP LOCKED subquery is all-or-nothing, so two concurrent claimers
// never observe the same row.
func (r *JobRepository) Claim(ctx context.Context, queue string) (*domain.Job, error) {
	var claimed *domain.Job
	err := withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx, `
			UPDATE jobs
			SET    status       = 'processing',
			       processed_at = NOW(),
			       attempts     = attempts + 1
			WHERE id = (
				SELECT id FROM jobs
				WHERE  queue = $1 AND status = 'pending'
				ORDER BY priority DESC, created_at ASC, id ASC
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+jobColumns,
			queue,
		)
		j, scanErr := scanJob(row)
		if scanErr != nil {
			if errors.Is(scanErr, domain.ErrJobNotFound) {
				claimed = nil
				return nil
			}
			return scanErr
		}
		claimed = j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

func (r *JobRepository) Ack(ctx context.Context, id int64) error {
	return withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET    status = 'completed', completed_at = NOW()
			WHERE  id = $1 AND status = 'processing'`, id)
		return err
	})
}

// Fail reads the row's current attempts/max_attempts and decides, in one
// statement, whether this is a retry (processing -> pending) or terminal
// (processing -> failed). §4.1 "Fail".
func (r *JobRepository) Fail(ctx context.Context, id int64, errMsg string) error {
	return withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET    status       = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
			       error        = $2,
			       processed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE processed_at END,
			       completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE NOW() END
			WHERE  id = $1 AND status = 'processing'`, id, errMsg)
		return err
	})
}

// FailTerminal unconditionally transitions processing -> failed, unlike
// Fail, which only terminates once attempts reaches max_attempts. Used
// for the unknown-job-class / malformed-envelope dispatch path, which
// must never be replayed regardless of max_attempts (§4.6 step 5).
func (r *JobRepository) FailTerminal(ctx context.Context, id int64, errMsg string) error {
	return withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET    status       = 'failed',
			       error        = $2,
			       completed_at = NOW()
			WHERE  id = $1 AND status = 'processing'`, id, errMsg)
		return err
	})
}

func (r *JobRepository) Touch(ctx context.Context, id int64) error {
	return withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs SET processed_at = NOW()
			WHERE id = $1 AND status = 'processing'`, id)
		return err
	})
}

func (r *JobRepository) PromoteDueDelayed(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := withRetry(ctx, func() error {
		tag, execErr := r.pool.Exec(ctx, `
			UPDATE jobs
			SET    status = 'pending'
			WHERE  status = 'scheduled' AND NOT is_recurring AND scheduled_for <= $1`, now)
		if execErr != nil {
			return execErr
		}
		n = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("promote due delayed: %w", err)
	}
	return n, nil
}

func (r *JobRepository) FindDueRecurring(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE is_recurring AND status = 'scheduled' AND next_run_at <= $1
		ORDER BY next_run_at ASC, id ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("find due recurring: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// SpawnInstance inserts a pending child row copying queue, priority,
// max_attempts and payload from parent, with parent_job_id set (§4.1,
// invariant 3).
func (r *JobRepository) SpawnInstance(ctx context.Context, parent *domain.Job) (*domain.Job, error) {
	var child *domain.Job
	err := withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx, `
			INSERT INTO jobs (queue, payload, status, priority, max_attempts, is_recurring, parent_job_id)
			VALUES ($1, $2, 'pending', $3, $4, FALSE, $5)
			RETURNING `+jobColumns,
			parent.Queue, parent.Payload, parent.Priority, parent.MaxAttempts, parent.ID,
		)
		j, scanErr := scanJob(row)
		if scanErr != nil {
			return scanErr
		}
		child = j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("spawn instance: %w", err)
	}
	return child, nil
}

func (r *JobRepository) AdvanceRecurring(ctx context.Context, id int64, now, nextRunAt time.Time) error {
	return withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs SET last_run_at = $2, next_run_at = $3
			WHERE id = $1 AND is_recurring`, id, now, nextRunAt)
		return err
	})
}

func (r *JobRepository) ResetStale(ctx context.Context, olderThan time.Time) (int, error) {
	var n int
	err := withRetry(ctx, func() error {
		tag, execErr := r.pool.Exec(ctx, `
			UPDATE jobs
			SET    status = 'pending', processed_at = NULL
			WHERE  status = 'processing' AND processed_at < $1`, olderThan)
		if execErr != nil {
			return execErr
		}
		n = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset stale: %w", err)
	}
	return n, nil
}

func (r *JobRepository) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	var n int
	err := withRetry(ctx, func() error {
		tag, execErr := r.pool.Exec(ctx, `
			DELETE FROM jobs
			WHERE status IN ('completed', 'failed')
			  AND NOT is_recurring
			  AND completed_at < $1`, olderThan)
		if execErr != nil {
			return execErr
		}
		n = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return n, nil
}

func (r *JobRepository) Cancel(ctx context.Context, id int64) error {
	return withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET    status = 'failed', error = $2, completed_at = NOW()
			WHERE  id = $1 AND status IN ('scheduled', 'pending')`, id, domain.ErrorCancelled)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrIllegalTransition
		}
		return nil
	})
}

func (r *JobRepository) Pause(ctx context.Context, id int64) error {
	return withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET    status = 'failed', error = $2
			WHERE  id = $1 AND is_recurring`, id, domain.ErrorPaused)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrIllegalTransition
		}
		return nil
	})
}

// Resume is only legal on a currently paused recurring template
// (status=failed, error='Paused'); resuming an active recurring job is
// an illegal transition, symmetric with Cancel/Pause (§4.7).
func (r *JobRepository) Resume(ctx context.Context, id int64, nextRunAt time.Time) error {
	return withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET    status = 'scheduled', error = NULL, next_run_at = $2
			WHERE  id = $1 AND is_recurring AND status = 'failed' AND error = $3`,
			id, nextRunAt, domain.ErrorPaused)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrIllegalTransition
		}
		return nil
	})
}

// rowScanner is implemented by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const jobColumns = `
	id, queue, payload, status, priority, attempts, max_attempts, error,
	created_at, processed_at, completed_at, scheduled_for, is_recurring,
	cron_expression, next_run_at, last_run_at, parent_job_id`

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.Queue, &j.Payload, &j.Status, &j.Priority, &j.Attempts, &j.MaxAttempts, &j.Error,
		&j.CreatedAt, &j.ProcessedAt, &j.CompletedAt, &j.ScheduledFor, &j.IsRecurring,
		&j.CronExpression, &j.NextRunAt, &j.LastRunAt, &j.ParentJobID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
