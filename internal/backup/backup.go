package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/stratus/internal/fsutil"
	"github.com/harun/stratus/internal/metrics"
)

const timestampLayout = "20060102T150405"

// Config controls backup creation and rotation
type Config struct {
	StatePath  string
	Dir        string
	MaxBackups int
	MaxAgeDays int
}

// Entry describes a single backup on disk
type Entry struct {
	Path      string
	CreatedAt time.Time
	Size      int64
}

// Manager creates timestamped copies of the state file and rotates old ones
type Manager struct {
	config  Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewManager creates a backup manager
func NewManager(config Config, m *metrics.Metrics) *Manager {
	return &Manager{
		config:  config,
		metrics: m,
		logger:  log.With().Str("component", "backup").Logger(),
	}
}

// Create copies the current state file into the backup directory.
// Missing state is not an error so a fresh install can schedule backups
// before the first deploy.
func (m *Manager) Create() (string, error) {
	if !fsutil.Exists(m.config.StatePath) {
		m.logger.Debug().Str("path", m.config.StatePath).Msg("No state file, skipping backup")
		return "", nil
	}

	name := fmt.Sprintf("state-%s.json", time.Now().UTC().Format(timestampLayout))
	dst := filepath.Join(m.config.Dir, name)

	if err := fsutil.CopyFile(m.config.StatePath, dst); err != nil {
		if m.metrics != nil {
			m.metrics.BackupErrorsTotal.Inc()
		}
		return "", fmt.Errorf("failed to back up state: %w", err)
	}

	if m.metrics != nil {
		m.metrics.BackupsTotal.Inc()
	}
	m.logger.Info().Str("backup", dst).Msg("State backed up")

	if err := m.Prune(); err != nil {
		m.logger.Warn().Err(err).Msg("Backup rotation failed")
	}

	return dst, nil
}

// List returns all backups, newest first
func (m *Manager) List() ([]Entry, error) {
	entries, err := os.ReadDir(m.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Entry
	for _, entry := range entries {
		created, ok := parseBackupName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Entry{
			Path:      filepath.Join(m.config.Dir, entry.Name()),
			CreatedAt: created,
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Prune removes backups beyond MaxBackups or older than MaxAgeDays
func (m *Manager) Prune() error {
	backups, err := m.List()
	if err != nil {
		return err
	}

	cutoff := time.Time{}
	if m.config.MaxAgeDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -m.config.MaxAgeDays)
	}

	for i, entry := range backups {
		tooMany := m.config.MaxBackups > 0 && i >= m.config.MaxBackups
		tooOld := !cutoff.IsZero() && entry.CreatedAt.Before(cutoff)
		if !tooMany && !tooOld {
			continue
		}

		if err := os.Remove(entry.Path); err != nil {
			m.logger.Warn().Err(err).Str("backup", entry.Path).Msg("Failed to remove backup")
			continue
		}
		if m.metrics != nil {
			m.metrics.BackupsPruned.Inc()
		}
		m.logger.Debug().Str("backup", entry.Path).Msg("Backup pruned")
	}

	return nil
}

// Restore copies the given backup over the state file
func (m *Manager) Restore(backupPath string) error {
	if !fsutil.Exists(backupPath) {
		return fmt.Errorf("backup does not exist: %s", backupPath)
	}
	if err := fsutil.CopyFile(backupPath, m.config.StatePath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	m.logger.Info().Str("backup", backupPath).Msg("State restored from backup")
	return nil
}

func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, "state-") || !strings.HasSuffix(name, ".json") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, "state-"), ".json")
	t, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
