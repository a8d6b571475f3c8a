package repository

import (
	"context"
	"time"

	"github.com/ridgeback/jobqueue/internal/domain"
)

// JobRepository is the Store contract (§4.1). The usecase layer depends
// on this interface, not a concrete implementation, so it can be swapped
// or faked in tests without touching business logic.
type JobRepository interface {
	// Insert assigns an id, stamps CreatedAt, and writes the row.
	Insert(ctx context.Context, job *domain.Job) (*domain.Job, error)

	GetByID(ctx context.Context, id int64) (*domain.Job, error)

	// Claim selects the highest-priority, oldest pending row in queue and
	// atomically transitions it to processing. Returns nil, nil if none
	// is available. All-or-nothing: two concurrent claimers never observe
	// the same row.
	Claim(ctx context.Context, queue string) (*domain.Job, error)

	// Ack transitions processing -> completed.
	Ack(ctx context.Context, id int64) error

	// Fail transitions processing -> pending (attempts < maxAttempts) or
	// processing -> failed (terminal, attempts == maxAttempts).
	Fail(ctx context.Context, id int64, errMsg string) error

	// FailTerminal unconditionally transitions processing -> failed,
	// regardless of attempts vs maxAttempts. Used for dispatch failures
	// that must never be replayed (unknown job class, malformed
	// envelope) — §4.6 step 5, §7 "Unknown job class".
	FailTerminal(ctx context.Context, id int64, errMsg string) error

	// Touch refreshes ProcessedAt on a still-running claim so a
	// long-running handler is not reclaimed by ResetStale mid-flight.
	Touch(ctx context.Context, id int64) error

	// PromoteDueDelayed moves scheduled, non-recurring rows whose
	// ScheduledFor has arrived to pending. Returns the count affected.
	PromoteDueDelayed(ctx context.Context, now time.Time) (int, error)

	// FindDueRecurring returns recurring templates whose NextRunAt has
	// arrived.
	FindDueRecurring(ctx context.Context, now time.Time) ([]*domain.Job, error)

	// SpawnInstance inserts a pending child row copying
	// queue/priority/maxAttempts/payload from parent, with ParentJobID set.
	SpawnInstance(ctx context.Context, parent *domain.Job) (*domain.Job, error)

	// AdvanceRecurring sets LastRunAt=now and NextRunAt=nextRunAt on a
	// recurring template.
	AdvanceRecurring(ctx context.Context, id int64, now, nextRunAt time.Time) error

	// ResetStale returns any processing row whose ProcessedAt is older
	// than olderThan to pending, without decrementing Attempts.
	ResetStale(ctx context.Context, olderThan time.Time) (int, error)

	// Cleanup deletes terminal rows (completed/failed, non-recurring)
	// whose CompletedAt is older than olderThan.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Cancel, Pause and Resume are the admin state transitions of §4.7.
	Cancel(ctx context.Context, id int64) error
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64, nextRunAt time.Time) error
}
