package scheduler_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ridgeback/jobqueue/internal/domain"
)

// memJobRepo is an in-memory implementation of repository.JobRepository
// used to exercise the Tick and Worker loops end to end, the way the
// teacher's usecase tests exercise business logic against hand-written
// fakes rather than a live database. It reproduces the Store contract's
// claim ordering and retry semantics (§4.1) so tests here validate real
// behavior, not a mocked shortcut.
type memJobRepo struct {
	mu     sync.Mutex
	rows   map[int64]*domain.Job
	nextID int64
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{rows: make(map[int64]*domain.Job)}
}

func (r *memJobRepo) Insert(_ context.Context, job *domain.Job) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *job
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	if cp.MaxAttempts == 0 {
		cp.MaxAttempts = 3
	}
	r.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memJobRepo) GetByID(_ context.Context, id int64) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := *job
	return &out, nil
}

// Claim is all-or-nothing under the mutex, mirroring the single
// transaction the real Store uses (§5).
func (r *memJobRepo) Claim(_ context.Context, queue string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*domain.Job
	for _, j := range r.rows {
		if j.Queue == queue && j.Status == domain.StatusPending {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		if !candidates[i].CreatedAt.Equal(candidates[k].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
		}
		return candidates[i].ID < candidates[k].ID
	})

	chosen := candidates[0]
	chosen.Status = domain.StatusProcessing
	now := time.Now()
	chosen.ProcessedAt = &now
	chosen.Attempts++
	out := *chosen
	return &out, nil
}

func (r *memJobRepo) Ack(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok || job.Status != domain.StatusProcessing {
		return nil
	}
	job.Status = domain.StatusCompleted
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

func (r *memJobRepo) Fail(_ context.Context, id int64, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok || job.Status != domain.StatusProcessing {
		return nil
	}
	job.Error = &msg
	if job.Attempts < job.MaxAttempts {
		job.Status = domain.StatusPending
		job.ProcessedAt = nil
	} else {
		job.Status = domain.StatusFailed
		now := time.Now()
		job.CompletedAt = &now
	}
	return nil
}

// FailTerminal unconditionally transitions processing -> failed,
// regardless of attempts vs MaxAttempts, mirroring the real Store's
// unconditional terminal transition for dispatch failures that must
// never be replayed (unknown job class, malformed envelope).
func (r *memJobRepo) FailTerminal(_ context.Context, id int64, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok || job.Status != domain.StatusProcessing {
		return nil
	}
	job.Error = &msg
	job.Status = domain.StatusFailed
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

func (r *memJobRepo) Touch(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if ok && job.Status == domain.StatusProcessing {
		now := time.Now()
		job.ProcessedAt = &now
	}
	return nil
}

func (r *memJobRepo) PromoteDueDelayed(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.rows {
		if !j.IsRecurring && j.Status == domain.StatusScheduled && j.ScheduledFor != nil && !j.ScheduledFor.After(now) {
			j.Status = domain.StatusPending
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) FindDueRecurring(_ context.Context, now time.Time) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.Job
	for _, j := range r.rows {
		if j.IsRecurring && j.Status == domain.StatusScheduled && j.NextRunAt != nil && !j.NextRunAt.After(now) {
			cp := *j
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ID < due[k].ID })
	return due, nil
}

func (r *memJobRepo) SpawnInstance(_ context.Context, parent *domain.Job) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	pid := parent.ID
	child := &domain.Job{
		ID:          r.nextID,
		Queue:       parent.Queue,
		Payload:     parent.Payload,
		Status:      domain.StatusPending,
		Priority:    parent.Priority,
		MaxAttempts: parent.MaxAttempts,
		CreatedAt:   time.Now(),
		ParentJobID: &pid,
	}
	r.rows[child.ID] = child
	out := *child
	return &out, nil
}

func (r *memJobRepo) AdvanceRecurring(_ context.Context, id int64, now, nextRunAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.LastRunAt = &now
	job.NextRunAt = &nextRunAt
	return nil
}

func (r *memJobRepo) ResetStale(_ context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.rows {
		if j.Status == domain.StatusProcessing && j.ProcessedAt != nil && j.ProcessedAt.Before(olderThan) {
			j.Status = domain.StatusPending
			j.ProcessedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.rows {
		if j.IsRecurring {
			continue
		}
		if (j.Status == domain.StatusCompleted || j.Status == domain.StatusFailed) && j.CompletedAt != nil && j.CompletedAt.Before(olderThan) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) Cancel(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memJobRepo) Pause(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok || !job.IsRecurring {
		return domain.ErrIllegalTransition
	}
	job.Status = domain.StatusFailed
	msg := domain.ErrorPaused
	job.Error = &msg
	return nil
}

func (r *memJobRepo) Resume(_ context.Context, id int64, nextRunAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok || !job.IsRecurring || !job.Paused() {
		return domain.ErrIllegalTransition
	}
	job.Status = domain.StatusScheduled
	job.Error = nil
	job.NextRunAt = &nextRunAt
	return nil
}

func (r *memJobRepo) get(id int64) *domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.rows[id]
	if job == nil {
		return nil
	}
	out := *job
	return &out
}

// fakeAttemptRepo keeps attempt records in memory, keyed by a
// sequentially assigned ID; ListByJobID returns them in no fixed order.
type fakeAttemptRepo struct {
	mu       sync.Mutex
	nextID   int64
	attempts map[int64]*domain.JobAttempt
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[int64]*domain.JobAttempt)}
}

func (r *fakeAttemptRepo) CreateAttempt(_ context.Context, a *domain.JobAttempt) (*domain.JobAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *a
	cp.ID = r.nextID
	r.attempts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeAttemptRepo) CompleteAttempt(_ context.Context, id int64, outcome string, errMsg *string, durationMS int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil
	}
	now := time.Now()
	a.CompletedAt = &now
	a.Outcome = outcome
	a.Error = errMsg
	a.DurationMS = &durationMS
	return nil
}

func (r *fakeAttemptRepo) ListByJobID(_ context.Context, jobID int64) ([]*domain.JobAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.JobAttempt
	for _, a := range r.attempts {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}
