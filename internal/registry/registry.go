// Package registry is the process-wide job-class registry (C3). Client
// code calls Define once per job class at startup; the worker loop looks
// handlers up by name at dispatch time. There is no file-scan or
// side-effecting import magic — every job class is explicit.
package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ridgeback/jobqueue/internal/domain"
	"github.com/ridgeback/jobqueue/internal/usecase"
)

// JobContext carries per-dispatch metadata into a handler.
type JobContext struct {
	JobID int64
}

// Handler is the job-class contract (§6 item 1): returning nil means
// success, a non-nil error means failure with Error() captured as the
// job's error field.
type Handler func(ctx context.Context, args json.RawMessage, jobCtx JobContext) error

// Registry holds name -> handler. It is safe for concurrent use; in
// normal operation it is populated once at startup and never mutated
// again, but re-Define is supported and last-write wins.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Handler
	queue *usecase.QueueUsecase
}

func New(queue *usecase.QueueUsecase) *Registry {
	return &Registry{
		defs:  make(map[string]Handler),
		queue: queue,
	}
}

// Define registers handler under name, replacing any prior definition,
// and returns a Definition exposing the three enqueue shortcuts.
func (r *Registry) Define(name string, handler Handler) *Definition {
	r.mu.Lock()
	r.defs[name] = handler
	r.mu.Unlock()
	return &Definition{name: name, queue: r.queue}
}

// Lookup returns the handler registered for name, if any.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.defs[name]
	return h, ok
}

// Names returns the registered job-class names in stable, sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition is returned by Define and constructs the {jobClass, args}
// envelope for each enqueue shortcut (§4.3).
type Definition struct {
	name  string
	queue *usecase.QueueUsecase
}

// PerformLater enqueues an immediate job, or a scheduled one if options
// sets ScheduledFor/CronExpression.
func (d *Definition) PerformLater(ctx context.Context, args any, opts usecase.EnqueueOptions) (*domain.Job, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return d.queue.Enqueue(ctx, d.name, raw, opts)
}

// PerformAt forces ScheduledFor=when, overriding anything set in opts.
func (d *Definition) PerformAt(ctx context.Context, when time.Time, args any, opts usecase.EnqueueOptions) (*domain.Job, error) {
	opts.ScheduledFor = &when
	opts.CronExpression = ""
	return d.PerformLater(ctx, args, opts)
}

// PerformEvery forces CronExpression=expr, overriding anything set in opts.
func (d *Definition) PerformEvery(ctx context.Context, expr string, args any, opts usecase.EnqueueOptions) (*domain.Job, error) {
	opts.CronExpression = expr
	return d.PerformLater(ctx, args, opts)
}
