package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidCronExpr = errors.New("invalid cron expression")

	// ErrIllegalTransition is returned by admin operations attempted from a
	// status/recurring state that does not permit them (§4.7).
	ErrIllegalTransition = errors.New("illegal state transition")
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Cancelled and paused jobs are not distinct statuses — both are encoded
// as StatusFailed with a well-known Error marker, per the overloaded
// encoding the spec calls for rather than adding new enum values.
const (
	ErrorCancelled = "Cancelled"
	ErrorPaused    = "Paused"
)

// Job is the single persisted entity: an immediate/delayed one-shot unit
// of work, or — when IsRecurring is true — a recurring template that is
// itself never claimed, only ever spawning instances.
type Job struct {
	ID             int64
	Queue          string
	Payload        string
	Status         Status
	Priority       int
	Attempts       int
	MaxAttempts    int
	Error          *string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
	CompletedAt    *time.Time
	ScheduledFor   *time.Time
	IsRecurring    bool
	CronExpression *string
	NextRunAt      *time.Time
	LastRunAt      *time.Time
	ParentJobID    *int64
}

// Paused reports whether a recurring template is currently paused, i.e.
// status=failed with the paused marker (§4.7 Pause/Resume).
func (j *Job) Paused() bool {
	return j.IsRecurring && j.Status == StatusFailed && j.Error != nil && *j.Error == ErrorPaused
}

// Envelope is the opaque payload format the store sees only as a string:
// {jobClass, args}. Args is caller-supplied and round-trips byte-for-byte.
type Envelope struct {
	JobClass string          `json:"jobClass"`
	Args     json.RawMessage `json:"args"`
}

// LegacyJobClass names the synthetic class used when a persisted payload
// predates the {jobClass, args} envelope (§4.6 step 4, §6 item 5).
const LegacyJobClass = "LegacyJob"

// EncodeEnvelope serializes {jobClass, args} into the opaque payload string
// the store persists.
func EncodeEnvelope(jobClass string, args json.RawMessage) (string, error) {
	b, err := json.Marshal(Envelope{JobClass: jobClass, Args: args})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeEnvelope parses a persisted payload back into {jobClass, args}.
// A payload with no jobClass key is a legacy envelope: the whole payload
// becomes args under the synthetic LegacyJobClass name.
func DecodeEnvelope(payload string) (Envelope, error) {
	var probe struct {
		JobClass *string `json:"jobClass"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return Envelope{}, err
	}
	if probe.JobClass != nil {
		var env Envelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return Envelope{}, err
		}
		return env, nil
	}
	return Envelope{JobClass: LegacyJobClass, Args: json.RawMessage(payload)}, nil
}

// JobAttempt is an additive, audit-only record of one claim of a job row.
// It never drives transitions — Job.Attempts/Status/Error remain the
// authoritative outcome (§7 "user-visible failure").
type JobAttempt struct {
	ID          int64
	JobID       int64
	AttemptNum  int
	WorkerID    string
	StartedAt   time.Time
	CompletedAt *time.Time
	Outcome     string // "completed" | "failed" | "" while open
	Error       *string
	DurationMS  *int64
}
