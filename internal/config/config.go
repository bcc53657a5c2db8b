package config

import (
	"path/filepath"

	"github.com/harun/stratus/internal/logger"
)

// Config is the top-level stratus configuration
type Config struct {
	DataDir   string        `json:"data_dir" mapstructure:"data_dir"`
	StatePath string        `json:"state_path" mapstructure:"state_path"`
	Logging   logger.Config `json:"logging" mapstructure:"logging"`
	Engine    EngineConfig  `json:"engine" mapstructure:"engine"`
	Plugins   PluginConfig  `json:"plugins" mapstructure:"plugins"`
	Backup    BackupConfig  `json:"backup" mapstructure:"backup"`
}

// EngineConfig configures the provisioning engine
type EngineConfig struct {
	Workspace   string `json:"workspace" mapstructure:"workspace"`
	Parallelism int    `json:"parallelism" mapstructure:"parallelism"`
}

// PluginConfig configures plugin discovery and loading
type PluginConfig struct {
	BuiltinDir      string                    `json:"builtin_dir" mapstructure:"builtin_dir"`
	WorkspaceDir    string                    `json:"workspace_dir" mapstructure:"workspace_dir"`
	ExtraDirs       []string                  `json:"extra_dirs" mapstructure:"extra_dirs"`
	LoadConcurrency int                       `json:"load_concurrency" mapstructure:"load_concurrency"`
	Audit           bool                      `json:"audit" mapstructure:"audit"`
	Configs         map[string]map[string]any `json:"configs" mapstructure:"configs"`
}

// BackupConfig configures state backup rotation
type BackupConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Schedule   string `json:"schedule" mapstructure:"schedule"` // cron expression, empty disables
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: logger.DefaultConfig(),
		Engine: EngineConfig{
			Parallelism: 10,
		},
		Plugins: PluginConfig{
			LoadConcurrency: 4,
			Audit:           true,
		},
		Backup: BackupConfig{
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
	}
}

// ApplyDataDir fills path defaults that hang off the data directory
func (c *Config) ApplyDataDir() {
	if c.DataDir == "" {
		return
	}
	if c.StatePath == "" {
		c.StatePath = filepath.Join(c.DataDir, "state.json")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "stratus.log")
	}
	if c.Plugins.WorkspaceDir == "" {
		c.Plugins.WorkspaceDir = filepath.Join(c.DataDir, "plugins")
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(c.DataDir, "backups")
	}
}
