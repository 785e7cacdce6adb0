// Package scheduler runs the daily freshness-checked sync.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job is the work executed on every tick.
type Job func(ctx context.Context)

// Scheduler owns one cron instance with a single daily entry. Overlapping
// ticks are skipped while the previous one is still running.
type Scheduler struct {
	cron *cron.Cron
	spec string
	id   cron.EntryID
}

// New registers job to run every day at hour:minute in loc.
func New(hour, minute int, loc *time.Location, job Job) (*Scheduler, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("scheduler: invalid time of day %02d:%02d", hour, minute)
	}
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	id, err := c.AddFunc(spec, func() {
		log.Info().Str("schedule", spec).Msg("scheduled sync tick")
		job(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: register %q: %w", spec, err)
	}
	return &Scheduler{cron: c, spec: spec, id: id}, nil
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("schedule", s.spec).Time("next", s.Next()).Msg("scheduler started")
}

// Stop halts future ticks and returns a context that is done once a running
// job has returned. Callers that must not wait can ignore it.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	log.Info().Msg("scheduler stopped")
	return ctx
}

// Next is the time of the upcoming tick, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
