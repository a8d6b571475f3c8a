package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ridgeback/jobqueue/internal/domain"
	"github.com/ridgeback/jobqueue/internal/metrics"
	"github.com/ridgeback/jobqueue/internal/registry"
	"github.com/ridgeback/jobqueue/internal/repository"
	"github.com/ridgeback/jobqueue/internal/requestid"
)

const (
	dbErrorBackoffStep = 1 * time.Second
	dbErrorBackoffCap  = 30 * time.Second
	heartbeatInterval  = 10 * time.Second
)

// Worker runs the single-threaded claim/dispatch/ack loop (C6), running
// a Tick (C5) at the top of a poll cycle whenever at least tickInterval
// has passed since the last successful tick. Multiple Workers may run
// against the same store concurrently (§5) — there is no coordination
// beyond the store's atomic Claim.
type Worker struct {
	id           string
	queue        string
	repo         repository.JobRepository
	attempts     repository.AttemptRepository
	registry     *registry.Registry
	tick         *Tick
	logger       *slog.Logger
	pollInterval time.Duration
	tickInterval time.Duration
	onEmpty      func()
}

// NewWorker wires a Worker against repo/attempts/registry. attempts may
// be nil, in which case the supplemental per-attempt audit log (SPEC_FULL
// §11) is skipped without affecting the Job row's own Status/Attempts.
func NewWorker(
	queue string,
	repo repository.JobRepository,
	attempts repository.AttemptRepository,
	reg *registry.Registry,
	logger *slog.Logger,
	pollInterval, tickInterval time.Duration,
) *Worker {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	return &Worker{
		id:           id,
		queue:        queue,
		repo:         repo,
		attempts:     attempts,
		registry:     reg,
		tick:         NewTick(repo, logger),
		logger:       logger.With("component", "worker", "worker_id", id),
		pollInterval: pollInterval,
		tickInterval: tickInterval,
	}
}

// OnEmpty registers a callback invoked whenever Claim finds no pending
// row (§4.6 step 3). Primarily useful for tests observing idle cycles.
func (w *Worker) OnEmpty(fn func()) { w.onEmpty = fn }

// Start runs the loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()
	w.logger.Info("worker started", "queue", w.queue)

	var dbErrorBackoff time.Duration
	var lastTick time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shut down")
			return
		default:
		}

		// Scheduler tick runs at most once per tickInterval (§4.5).
		if time.Since(lastTick) >= w.tickInterval {
			if err := w.tick.Run(ctx); err != nil {
				w.logger.Error("scheduler tick", "error", err)
				dbErrorBackoff = backoffAfterError(dbErrorBackoff)
				metrics.DBErrorBackoffSeconds.Set(dbErrorBackoff.Seconds())
				if sleepOrDone(ctx, dbErrorBackoff) {
					return
				}
				continue
			}
			lastTick = time.Now()
		}

		job, err := w.repo.Claim(ctx, w.queue)
		if err != nil {
			w.logger.Error("claim", "error", err)
			dbErrorBackoff = backoffAfterError(dbErrorBackoff)
			metrics.DBErrorBackoffSeconds.Set(dbErrorBackoff.Seconds())
			if sleepOrDone(ctx, dbErrorBackoff) {
				return
			}
			continue
		}
		dbErrorBackoff = 0
		metrics.DBErrorBackoffSeconds.Set(0)

		if job == nil {
			if w.onEmpty != nil {
				w.onEmpty()
			}
			if sleepOrDone(ctx, w.pollInterval) {
				return
			}
			continue
		}

		metrics.ClaimLatency.Observe(time.Since(job.CreatedAt).Seconds())
		w.dispatch(ctx, job)
	}
}

// dispatch parses the envelope, looks up a handler, runs it under a
// heartbeat goroutine, and acks or fails the row (§4.6 steps 4-6).
func (w *Worker) dispatch(ctx context.Context, job *domain.Job) {
	reqID := uuid.NewString()
	ctx = requestid.WithRequestID(ctx, reqID)
	logger := w.logger.With("job_id", job.ID, "request_id", reqID)

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	env, err := domain.DecodeEnvelope(job.Payload)
	if err != nil {
		logger.Error("decode payload", "error", err)
		w.finishUnknown(ctx, job, logger, fmt.Sprintf("malformed payload: %v", err))
		return
	}

	handler, ok := w.registry.Lookup(env.JobClass)
	if !ok {
		names := w.registry.Names()
		msg := fmt.Sprintf("Unknown job class: %s. Registered: %v", env.JobClass, names)
		logger.Warn("unknown job class", "job_class", env.JobClass)
		w.finishUnknown(ctx, job, logger, msg)
		return
	}

	attemptID, attemptStart := w.openAttempt(ctx, job, logger)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	go w.heartbeat(heartbeatCtx, job.ID, logger)

	start := time.Now()
	handlerErr := invoke(ctx, handler, env.Args, registry.JobContext{JobID: job.ID})
	duration := time.Since(start)
	cancelHeartbeat()

	if handlerErr == nil {
		if err := w.repo.Ack(ctx, job.ID); err != nil {
			logger.Error("ack job", "error", err)
		}
		metrics.DispatchDuration.WithLabelValues("completed").Observe(duration.Seconds())
		metrics.JobsDispatchedTotal.WithLabelValues("completed").Inc()
		w.closeAttempt(ctx, attemptID, attemptStart, "completed", nil)
		logger.Info("job completed", "duration", duration)
		return
	}

	logger.Warn("job handler failed", "error", handlerErr, "duration", duration, "attempt", job.Attempts)
	if err := w.repo.Fail(ctx, job.ID, handlerErr.Error()); err != nil {
		logger.Error("fail job", "error", err)
	}

	outcome := "retried"
	if job.Attempts >= job.MaxAttempts {
		outcome = "failed"
	}
	metrics.DispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	metrics.JobsDispatchedTotal.WithLabelValues(outcome).Inc()
	errMsg := handlerErr.Error()
	w.closeAttempt(ctx, attemptID, attemptStart, outcome, &errMsg)
}

// finishUnknown handles the unknown-job-class / malformed-payload path
// (§4.6 step 5): it consumes an attempt and moves straight to a
// terminal Fail call, never invoking a handler.
func (w *Worker) finishUnknown(ctx context.Context, job *domain.Job, logger *slog.Logger, msg string) {
	if err := w.repo.FailTerminal(ctx, job.ID, msg); err != nil {
		logger.Error("fail unknown-class job", "error", err)
	}
	metrics.JobsDispatchedTotal.WithLabelValues("unknown_class").Inc()
}

// invoke runs handler, converting a panic into an error so one bad
// handler never takes the whole worker process down.
func invoke(ctx context.Context, handler registry.Handler, args json.RawMessage, jobCtx registry.JobContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, args, jobCtx)
}

func (w *Worker) heartbeat(ctx context.Context, jobID int64, logger *slog.Logger) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.Touch(ctx, jobID); err != nil {
				logger.Warn("heartbeat touch failed", "error", err)
			}
		}
	}
}

func (w *Worker) openAttempt(ctx context.Context, job *domain.Job, logger *slog.Logger) (int64, time.Time) {
	if w.attempts == nil {
		return 0, time.Time{}
	}
	start := time.Now()
	a, err := w.attempts.CreateAttempt(ctx, &domain.JobAttempt{
		JobID:      job.ID,
		AttemptNum: job.Attempts,
		WorkerID:   w.id,
		StartedAt:  start,
	})
	if err != nil {
		logger.Warn("create attempt record", "error", err)
		return 0, start
	}
	return a.ID, start
}

func (w *Worker) closeAttempt(ctx context.Context, attemptID int64, start time.Time, outcome string, errMsg *string) {
	if w.attempts == nil || attemptID == 0 {
		return
	}
	if err := w.attempts.CompleteAttempt(ctx, attemptID, outcome, errMsg, time.Since(start).Milliseconds()); err != nil {
		w.logger.Warn("complete attempt record", "error", err)
	}
}

func backoffAfterError(current time.Duration) time.Duration {
	next := current + dbErrorBackoffStep
	if next > dbErrorBackoffCap {
		next = dbErrorBackoffCap
	}
	return next
}

// sleepOrDone sleeps for d, returning true early if ctx is cancelled.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
