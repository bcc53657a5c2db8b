package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a plugin row does not exist
var ErrNotFound = errors.New("plugin not installed")

// InstalledPlugin is a row of installation bookkeeping. It records where
// a plugin came from and whether the user wants it enabled across runs.
type InstalledPlugin struct {
	ID          string
	Version     string
	Author      string
	SourcePath  string
	Enabled     bool
	InstalledAt time.Time
	UpdatedAt   time.Time
}

// Store persists installed-plugin bookkeeping in SQLite
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the plugin store at dbPath
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: log.With().Str("component", "store").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS plugins (
			id TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			source_path TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			installed_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_plugins_enabled ON plugins(enabled);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or updates a plugin row, preserving installed_at on update
func (s *Store) Put(p InstalledPlugin) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO plugins (id, version, author, source_path, enabled, installed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			author = excluded.author,
			source_path = excluded.source_path,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, p.ID, p.Version, p.Author, p.SourcePath, p.Enabled, now, now)
	if err != nil {
		return fmt.Errorf("failed to store plugin %s: %w", p.ID, err)
	}

	s.logger.Debug().Str("plugin", p.ID).Str("version", p.Version).Msg("Plugin recorded")
	return nil
}

// Get returns a single plugin row
func (s *Store) Get(id string) (InstalledPlugin, error) {
	row := s.db.QueryRow(`
		SELECT id, version, author, source_path, enabled, installed_at, updated_at
		FROM plugins WHERE id = ?
	`, id)
	return scanPlugin(row)
}

// List returns all plugin rows ordered by id
func (s *Store) List() ([]InstalledPlugin, error) {
	rows, err := s.db.Query(`
		SELECT id, version, author, source_path, enabled, installed_at, updated_at
		FROM plugins ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer rows.Close()

	var plugins []InstalledPlugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, rows.Err()
}

// SetEnabled flips the persisted enabled flag
func (s *Store) SetEnabled(id string, enabled bool) error {
	res, err := s.db.Exec(`
		UPDATE plugins SET enabled = ?, updated_at = ? WHERE id = ?
	`, enabled, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update plugin %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes a plugin row
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM plugins WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Debug().Str("plugin", id).Msg("Plugin removed from store")
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlugin(row rowScanner) (InstalledPlugin, error) {
	var p InstalledPlugin
	var installedAt, updatedAt int64
	err := row.Scan(&p.ID, &p.Version, &p.Author, &p.SourcePath, &p.Enabled, &installedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return InstalledPlugin{}, ErrNotFound
	}
	if err != nil {
		return InstalledPlugin{}, fmt.Errorf("failed to scan plugin row: %w", err)
	}
	p.InstalledAt = time.Unix(installedAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return p, nil
}
