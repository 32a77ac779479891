// Package scheduler drives the recurring runs off cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"zftrend/internal/model"
	"zftrend/internal/task"
)

// Scheduler manages the cron tasks.
type Scheduler struct {
	cron   *cron.Cron
	runner *task.Runner
	ctx    context.Context
	log    zerolog.Logger
}

// New creates a Scheduler around the task runner.
func New(ctx context.Context, runner *task.Runner, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		runner: runner,
		ctx:    ctx,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterAll registers the daily screen and the monthly universe refresh.
func (s *Scheduler) RegisterAll(dailyCron, monthlyCron string) error {
	if _, err := s.cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	if _, err := s.cron.AddFunc(monthlyCron, s.monthlyTask); err != nil {
		return fmt.Errorf("register monthly task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) dailyTask() {
	s.log.Info().Msg("running scheduled daily screen")
	report, err := s.runner.Daily(s.ctx, time.Now(), false)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled daily screen failed")
		return
	}
	if report.Skipped {
		return
	}
	s.log.Info().Int("trend", report.Matches[model.FilterTrend]).
		Int("three_line", report.Matches[model.FilterThreeLine]).
		Int("failed", report.StocksFailed).
		Msg("scheduled daily screen finished")
}

func (s *Scheduler) monthlyTask() {
	s.log.Info().Msg("running scheduled universe refresh")
	if _, err := s.runner.Monthly(s.ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled universe refresh failed")
	}
}
