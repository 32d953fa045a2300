package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked at every daily report slot with the slot timestamp.
type TickFunc func(ctx context.Context, slot time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Location     *time.Location
	Hour         int
	Minute       int
	StartupDelay time.Duration
}

// Scheduler fires once per calendar day at a fixed local wall-clock time.
// Whether a fired slot actually produces a report is the pipeline's call,
// not the scheduler's.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each daily slot until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextSlot(time.Now().In(s.opts.Location))
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextSlot(time.Now().In(s.opts.Location))
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_slot", next).Msg("waiting for next report slot")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.logger.Info().Time("slot", next).Msg("executing scheduled report slot")

		if err := tick(ctx, next); err != nil {
			s.logger.Error().Err(err).Time("slot", next).Msg("slot execution failed")
		}

		next = s.nextSlot(next.Add(time.Minute))
	}
}

// nextSlot returns the first daily slot strictly after now.
func (s *Scheduler) nextSlot(now time.Time) time.Time {
	slot := time.Date(now.Year(), now.Month(), now.Day(), s.opts.Hour, s.opts.Minute, 0, 0, s.opts.Location)
	if !slot.After(now) {
		slot = slot.AddDate(0, 0, 1)
	}
	return slot
}
