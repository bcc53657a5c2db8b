package backup

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Scheduler runs backups on a cron schedule
type Scheduler struct {
	manager *Manager
	cron    *cron.Cron
	entryID cron.EntryID
	logger  zerolog.Logger
}

// NewScheduler creates a scheduler around the given manager
func NewScheduler(manager *Manager) *Scheduler {
	return &Scheduler{
		manager: manager,
		cron:    cron.New(),
		logger:  log.With().Str("component", "backup-scheduler").Logger(),
	}
}

// Start schedules backups with the given cron expression and starts the
// cron runner. An empty expression disables scheduling.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		return nil
	}

	id, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.manager.Create(); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled backup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule: %w", err)
	}

	s.entryID = id
	s.cron.Start()
	s.logger.Info().Str("schedule", schedule).Msg("Backup scheduler started")
	return nil
}

// Stop stops the cron runner and waits for a running backup to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Backup scheduler stopped")
}
