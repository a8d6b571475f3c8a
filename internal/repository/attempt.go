package repository

import (
	"context"

	"github.com/ridgeback/jobqueue/internal/domain"
)

// AttemptRepository is the supplemental per-claim audit log described in
// SPEC_FULL.md §11. It never drives a Job's Status/Attempts/Error — those
// stay owned by JobRepository. This is additive history only.
type AttemptRepository interface {
	// CreateAttempt opens an attempt record at the moment a claim starts.
	// Returns the persisted attempt (with its DB-generated ID) so the
	// caller can close it with CompleteAttempt once the handler returns.
	CreateAttempt(ctx context.Context, attempt *domain.JobAttempt) (*domain.JobAttempt, error)

	// CompleteAttempt closes an open attempt with the dispatch outcome.
	// errMsg is nil on success.
	CompleteAttempt(ctx context.Context, id int64, outcome string, errMsg *string, durationMS int64) error

	// ListByJobID returns all attempts for a job, ordered by started_at ASC.
	ListByJobID(ctx context.Context, jobID int64) ([]*domain.JobAttempt, error)
}
