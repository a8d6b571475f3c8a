package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ridgeback/jobqueue/internal/cron"
	"github.com/ridgeback/jobqueue/internal/domain"
	"github.com/ridgeback/jobqueue/internal/repository"
)

const (
	defaultQueue       = "default"
	defaultMaxAttempts = 3
)

// EnqueueOptions is the exhaustive set of recognized Enqueue options
// (§4.4, §6 item 2). Unrecognized keys never reach here — callers only
// have these fields to set.
type EnqueueOptions struct {
	Queue          string
	Priority       int
	MaxAttempts    int
	ScheduledFor   *time.Time
	CronExpression string
}

// QueueUsecase is the Enqueue API (C4): the single public entry point
// client code and job definitions (internal/registry) use to insert
// immediate, delayed, or recurring jobs.
type QueueUsecase struct {
	repo repository.JobRepository
}

func NewQueueUsecase(repo repository.JobRepository) *QueueUsecase {
	return &QueueUsecase{repo: repo}
}

// Enqueue inserts a new job row for the given envelope. Precedence: if
// both CronExpression and ScheduledFor are set, CronExpression wins and
// the row is recurring (§4.4).
func (u *QueueUsecase) Enqueue(ctx context.Context, jobClass string, args json.RawMessage, opts EnqueueOptions) (*domain.Job, error) {
	payload, err := domain.EncodeEnvelope(jobClass, args)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	queue := opts.Queue
	if queue == "" {
		queue = defaultQueue
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	job := &domain.Job{
		Queue:       queue,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: maxAttempts,
	}

	now := time.Now()

	switch {
	case opts.CronExpression != "":
		if !cron.Validate(opts.CronExpression) {
			return nil, domain.ErrInvalidCronExpr
		}
		nextRunAt, err := cron.Next(opts.CronExpression, now)
		if err != nil {
			return nil, err
		}
		expr := opts.CronExpression
		job.Status = domain.StatusScheduled
		job.IsRecurring = true
		job.CronExpression = &expr
		job.NextRunAt = &nextRunAt

	case opts.ScheduledFor != nil:
		job.Status = domain.StatusScheduled
		at := *opts.ScheduledFor
		job.ScheduledFor = &at

	default:
		job.Status = domain.StatusPending
	}

	created, err := u.repo.Insert(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return created, nil
}

func (u *QueueUsecase) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	job, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}
