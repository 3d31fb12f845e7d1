package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// Scheduler fires the nightly retention apply pass at a configured
// instance-local time. Only one replica's scheduler actually runs a
// pass: every tick tries a Postgres advisory lock first and skips the
// run entirely if it can't get it.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	db     *db.Database
}

// NewScheduler builds a scheduler. spec is a standard 5-field cron
// expression; "0 2 * * *" (02:00 instance-local) is the documented
// default.
func NewScheduler(engine *Engine, database *db.Database, spec string) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		engine: engine,
		db:     database,
	}
	if _, err := s.cron.AddFunc(spec, s.runTick); err != nil {
		return nil, fmt.Errorf("retention: schedule: %w", err)
	}
	return s, nil
}

// Start launches the cron scheduler's background goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels pending ticks and waits for a run in progress to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

func (s *Scheduler) runTick() {
	defer func() {
		if r := recover(); r != nil {
			logger.Retention().Error().Interface("panic", r).Msg("retention scheduler tick panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	lock, acquired, err := s.db.TryAdvisoryLock(ctx, db.RetentionLockKey)
	if err != nil {
		logger.Retention().Error().Err(err).Msg("retention scheduler: advisory lock attempt failed")
		return
	}
	if !acquired {
		logger.Retention().Info().Msg("retention scheduler: another replica holds the lock, skipping")
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Retention().Warn().Err(err).Msg("retention scheduler: failed to release advisory lock")
		}
	}()

	result, err := s.engine.Apply(ctx, models.RetentionApplyOptions{DryRun: false, Confirm: true}, true)
	if err != nil {
		logger.Retention().Error().Err(err).Msg("retention scheduler: apply failed")
		return
	}
	logger.Retention().Info().
		Int64("totalDeleted", result.TotalDeleted).
		Int("projectsProcessed", result.ProjectsProcessed).
		Bool("aborted", result.Aborted).
		Msg("retention apply completed")
}
