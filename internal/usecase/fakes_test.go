package usecase_test

import (
	"context"
	"time"

	"github.com/ridgeback/jobqueue/internal/domain"
)

// fakeJobRepo is an in-memory stand-in for repository.JobRepository,
// following the teacher's hand-written fake style (internal/usecase/auth_test.go).
type fakeJobRepo struct {
	rows   map[int64]*domain.Job
	nextID int64

	cancelErr error
	pauseErr  error
	resumeErr error

	resetStaleN int
	cleanupN    int

	// resetStaleCutoff and cleanupCutoff record the olderThan argument of
	// the last ResetStale and Cleanup call.
	resetStaleCutoff time.Time
	cleanupCutoff    time.Time
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{rows: make(map[int64]*domain.Job)}
}

func (r *fakeJobRepo) Insert(_ context.Context, job *domain.Job) (*domain.Job, error) {
	r.nextID++
	cp := *job
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	r.rows[cp.ID] = &cp
	return &cp, nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id int64) (*domain.Job, error) {
	job, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (r *fakeJobRepo) Claim(context.Context, string) (*domain.Job, error) { return nil, nil }
func (r *fakeJobRepo) Ack(context.Context, int64) error                   { return nil }
func (r *fakeJobRepo) Fail(context.Context, int64, string) error          { return nil }
func (r *fakeJobRepo) FailTerminal(context.Context, int64, string) error  { return nil }
func (r *fakeJobRepo) Touch(context.Context, int64) error                 { return nil }

func (r *fakeJobRepo) PromoteDueDelayed(context.Context, time.Time) (int, error) { return 0, nil }
func (r *fakeJobRepo) FindDueRecurring(context.Context, time.Time) ([]*domain.Job, error) {
	return nil, nil
}
func (r *fakeJobRepo) SpawnInstance(context.Context, *domain.Job) (*domain.Job, error) {
	return nil, nil
}
func (r *fakeJobRepo) AdvanceRecurring(context.Context, int64, time.Time, time.Time) error {
	return nil
}

func (r *fakeJobRepo) ResetStale(_ context.Context, olderThan time.Time) (int, error) {
	r.resetStaleCutoff = olderThan
	return r.resetStaleN, nil
}
func (r *fakeJobRepo) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	r.cleanupCutoff = olderThan
	return r.cleanupN, nil
}

func (r *fakeJobRepo) Cancel(_ context.Context, id int64) error {
	if r.cancelErr != nil {
		return r.cancelErr
	}
	job, ok := r.rows[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.StatusScheduled && job.Status != domain.StatusPending {
		return domain.ErrIllegalTransition
	}
	job.Status = domain.StatusFailed
	msg := domain.ErrorCancelled
	job.Error = &msg
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

func (r *fakeJobRepo) Pause(_ context.Context, id int64) error {
	if r.pauseErr != nil {
		return r.pauseErr
	}
	job, ok := r.rows[id]
	if !ok || !job.IsRecurring {
		return domain.ErrIllegalTransition
	}
	job.Status = domain.StatusFailed
	msg := domain.ErrorPaused
	job.Error = &msg
	return nil
}

func (r *fakeJobRepo) Resume(_ context.Context, id int64, nextRunAt time.Time) error {
	if r.resumeErr != nil {
		return r.resumeErr
	}
	job, ok := r.rows[id]
	if !ok || !job.IsRecurring || !job.Paused() {
		return domain.ErrIllegalTransition
	}
	job.Status = domain.StatusScheduled
	job.Error = nil
	job.NextRunAt = &nextRunAt
	return nil
}
