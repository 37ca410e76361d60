package worker

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/pipeline"
)

// TriggerSchedule marks runs started by the scheduler.
const TriggerSchedule = "schedule"

// Scheduler starts a run every interval.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	runner     Runner
	interval   time.Duration
	runOnStart bool
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewScheduler creates a Scheduler from cfg.
func NewScheduler(cfg Config, runner Runner, logger zerolog.Logger) *Scheduler {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultConfig().RunTimeout
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		runner:     runner,
		interval:   cfg.ScheduleInterval,
		runOnStart: cfg.RunOnStart,
		timeout:    cfg.RunTimeout,
		logger:     logger,
	}
}

// Start schedules the periodic run and starts the underlying scheduler. It
// does nothing when the interval is zero.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info().Msg("schedule disabled")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	job := s.scheduler.Every(minutes).Minutes().SingletonMode()
	if !s.runOnStart {
		job = job.WaitForSchedule()
	}
	if _, err := job.Do(s.RunOnce, ctx); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info().Int("every_minutes", minutes).Bool("run_on_start", s.runOnStart).Msg("schedule started")
	return nil
}

// RunOnce executes one scheduled run. A run already in progress is skipped.
func (s *Scheduler) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.runner.Run(runCtx, TriggerSchedule)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Info().Msg("scheduled run skipped, another run is in progress")
	case err != nil:
		s.logger.Error().Err(err).Msg("scheduled run failed")
	default:
		s.logger.Info().Str("run_id", result.ID).Dur("duration", result.Duration).Msg("scheduled run completed")
	}
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
