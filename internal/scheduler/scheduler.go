// Package scheduler fires a job once a day at a fixed wall-clock time.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job is the work run at each firing
type Job func(ctx context.Context)

// Scheduler triggers a job daily at hour:minute in a fixed location.
// Missed firings are not caught up: if the process was down at the
// trigger time, the next firing is tomorrow's.
type Scheduler struct {
	hour     int
	minute   int
	location *time.Location
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a scheduler for the given wall-clock time and location
func New(hour, minute int, location *time.Location, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		hour:     hour,
		minute:   minute,
		location: location,
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// NextFire returns the first trigger instant strictly after now. Today's
// trigger if it is still ahead, otherwise tomorrow's.
func (s *Scheduler) NextFire(now time.Time) time.Time {
	local := now.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run fires the job at each daily trigger until the context is cancelled.
// The job runs inline: a long job delays nothing, the next firing is
// computed from the clock after it returns.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	for {
		next := s.NextFire(s.now())
		s.log.Info().Time("next_fire", next).Msg("waiting for next trigger")

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		s.log.Info().Time("fired_at", s.now()).Msg("trigger fired")
		job(ctx)
	}
}
