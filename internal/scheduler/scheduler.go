package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	// Immediate runs the first tick right after the startup delay instead of
	// one interval later.
	Immediate bool
	// MaxTicks stops Run after that many ticks; zero runs until ctx ends.
	MaxTicks int
}

// Scheduler drives periodic watch ticks.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick every interval until ctx is cancelled or MaxTicks
// is reached. Tick errors are logged and do not stop the loop. A slow tick
// delays the next one rather than stacking up missed ticks.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	delay := s.opts.Interval
	if s.opts.Immediate {
		delay = 0
	}

	for n := 0; s.opts.MaxTicks == 0 || n < s.opts.MaxTicks; n++ {
		if delay > 0 {
			s.logger.Debug().Dur("in", delay).Msg("waiting for next tick")
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		delay = s.opts.Interval

		at := time.Now().UTC()
		s.logger.Debug().Time("at", at).Int("tick", n+1).Msg("executing scheduled tick")
		if err := tick(ctx, at); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
