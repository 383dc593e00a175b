// Package cronexpr wraps github.com/robfig/cron/v3 with the half-open-
// interval "any scheduled instant in (last, now]" search spec.md §4.3
// requires; robfig/cron only exposes "next after a given instant", so the
// wrapper walks Next forward from last until it would exceed now. Extended
// (seconds-first) field support is grounded on the pack's
// gophpeek-phpeek-pm/go.mod, which lists robfig/cron/v3 as its scheduling
// dependency for the same kind of daemon-supervisor cron feature.
package cronexpr

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule wraps a parsed extended-cron expression.
type Schedule struct {
	sched cron.Schedule
	expr  string
}

// Parse compiles an extended (seconds-first) cron expression.
func Parse(expr string) (*Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return &Schedule{sched: sched, expr: expr}, nil
}

// String returns the original expression text.
func (s *Schedule) String() string { return s.expr }

// Triggered reports whether any scheduled instant falls in the half-open
// interval (last, now]. A zero last means "never triggered before": the
// window search still starts from last (the zero time), so the first tick
// after startup only fires if a scheduled instant already passed since the
// zero time and before now — callers should seed last to time.Now() at
// daemon registration to avoid an immediate fire on first tick, per
// spec.md's "last_cron_triggered is updated before invoking" rule which
// implies the caller owns priming the initial value.
func (s *Schedule) Triggered(last, now time.Time) bool {
	if !now.After(last) {
		return false
	}
	next := s.sched.Next(last)
	return !next.IsZero() && !next.After(now)
}

// NextAfter exposes the underlying "next after" primitive for callers (e.g.
// the TUI) that want to display an upcoming trigger time without driving
// the actual tick loop.
func (s *Schedule) NextAfter(t time.Time) time.Time {
	return s.sched.Next(t)
}
