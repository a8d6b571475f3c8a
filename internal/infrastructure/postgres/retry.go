package postgres

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	retryMaxAttempts = 5
	retryBaseDelay   = 100 * time.Millisecond
	retryCapDelay    = 2 * time.Second
	retryJitterMax   = 50 * time.Millisecond
)

// isRetryable classifies a store-level error as transient (§4.1
// "Retryable errors"): serialization/deadlock conflicts under SKIP
// LOCKED contention, or the pool timing out acquiring a connection.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// withRetry runs op, retrying transient failures with exponential
// backoff and jitter (base 100ms, cap 2s, up to 5 attempts). Any other
// error, or a context cancellation, propagates immediately.
func withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		err = op()
		if err == nil || !isRetryable(err) {
			return err
		}

		delay := retryBaseDelay * time.Duration(1<<attempt)
		if delay > retryCapDelay {
			delay = retryCapDelay
		}
		delay += time.Duration(rand.Int63n(int64(retryJitterMax) + 1))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
