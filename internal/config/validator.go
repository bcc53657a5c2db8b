package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the configuration for values that would fail later
func (v *Validator) Validate(cfg *Config) error {
	if cfg.Engine.Parallelism < 1 {
		return fmt.Errorf("engine parallelism must be at least 1, got %d", cfg.Engine.Parallelism)
	}

	if cfg.Plugins.LoadConcurrency < 1 {
		return fmt.Errorf("plugin load concurrency must be at least 1, got %d", cfg.Plugins.LoadConcurrency)
	}

	if cfg.Backup.MaxBackups < 0 {
		return fmt.Errorf("backup max_backups cannot be negative")
	}
	if cfg.Backup.MaxAgeDays < 0 {
		return fmt.Errorf("backup max_age_days cannot be negative")
	}
	if err := v.ValidateSchedule(cfg.Backup.Schedule); err != nil {
		return err
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	return nil
}

// ValidateSchedule checks a cron expression; empty disables scheduling
func (v *Validator) ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	return nil
}
