// Package sched runs the periodic reprocess pass on a cron schedule.
package sched

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-engine/internal/reprocess"
)

// Runner is the piece of the reprocess coordinator the scheduler needs.
type Runner interface {
	ReprocessAll(ctx context.Context) (reprocess.Result, error)
}

// Scheduler triggers reprocess passes on a fixed cron schedule. A pass that
// overlaps a manual trigger is skipped, not queued.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	log    zerolog.Logger
}

// New creates a scheduler that runs the given spec, e.g. "0 3 * * *".
func New(spec string, runner Runner, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		runner: runner,
		log:    log,
	}

	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Reprocess scheduler started")
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Reprocess scheduler stopped")
}

func (s *Scheduler) run() {
	result, err := s.runner.ReprocessAll(context.Background())
	if err != nil {
		if errors.Is(err, reprocess.ErrAlreadyRunning) {
			s.log.Info().Msg("Scheduled reprocess skipped, another pass is running")
			return
		}
		s.log.Error().Err(err).Msg("Scheduled reprocess failed")
		return
	}

	s.log.Info().
		Int("updated", result.Updated).
		Int("total", result.Total).
		Dur("duration", result.Duration).
		Msg("Scheduled reprocess completed")
}
