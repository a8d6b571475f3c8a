// Package cron evaluates 5-field cron expressions. It is intentionally
// pure — no mutable "current time" singleton — so property tests that
// depend on Next being deterministic for a given (expr, from) can rely
// on it.
package cron

import (
	"time"

	"github.com/ridgeback/jobqueue/internal/domain"
	"github.com/robfig/cron/v3"
)

// Validate reports whether expr is a valid 5-field cron expression
// (minute hour dayOfMonth month dayOfWeek).
func Validate(expr string) bool {
	_, err := cron.ParseStandard(expr)
	return err == nil
}

// Next returns the smallest instant strictly greater than from at which
// expr fires. Day-of-month and day-of-week are OR-combined when both are
// restricted, matching standard cron semantics (robfig/cron/v3's
// "standard" parser already implements this union).
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, domain.ErrInvalidCronExpr
	}
	return sched.Next(from), nil
}
