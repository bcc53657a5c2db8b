package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ManifestFileName is the manifest persisted alongside each plugin source
const ManifestFileName = "plugin.json"

// DiscoveryConfig configures which directories are scanned for plugins
type DiscoveryConfig struct {
	BuiltinDir   string
	WorkspaceDir string
	ExtraDirs    []string
}

// Discovery scans directories to find candidate plugin sources.
// Discovery never mutates registry state.
type Discovery struct {
	logger zerolog.Logger
}

// NewDiscovery creates a new plugin discovery instance
func NewDiscovery(logger zerolog.Logger) *Discovery {
	return &Discovery{
		logger: logger.With().Str("component", "plugin-discovery").Logger(),
	}
}

// Discover scans configured directories and returns all candidate
// sources with their origin kind. A directory qualifies when it contains
// a plugin.json manifest.
func (d *Discovery) Discover(config DiscoveryConfig) ([]Source, error) {
	var discovered []Source

	if config.BuiltinDir != "" {
		sources, err := d.scanDirectory(config.BuiltinDir, SourceBuiltin)
		if err != nil {
			d.logger.Warn().Err(err).Str("dir", config.BuiltinDir).Msg("Failed to scan builtin directory")
		} else {
			discovered = append(discovered, sources...)
		}
	}

	if config.WorkspaceDir != "" {
		sources, err := d.scanDirectory(config.WorkspaceDir, SourceWorkspace)
		if err != nil {
			d.logger.Warn().Err(err).Str("dir", config.WorkspaceDir).Msg("Failed to scan workspace directory")
		} else {
			discovered = append(discovered, sources...)
		}
	}

	for _, extraDir := range config.ExtraDirs {
		if extraDir == "" {
			continue
		}
		sources, err := d.scanDirectory(extraDir, SourceExtra)
		if err != nil {
			d.logger.Warn().Err(err).Str("dir", extraDir).Msg("Failed to scan extra directory")
		} else {
			discovered = append(discovered, sources...)
		}
	}

	d.logger.Info().Int("count", len(discovered)).Msg("Plugin discovery completed")
	return discovered, nil
}

// scanDirectory scans a single directory for plugin sources
func (d *Discovery) scanDirectory(dir string, kind SourceKind) ([]Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Debug().Str("dir", dir).Msg("Directory does not exist, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var discovered []Source
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(pluginDir, ManifestFileName)

		if _, err := os.Stat(manifestPath); err != nil {
			if os.IsNotExist(err) {
				d.logger.Debug().
					Str("dir", pluginDir).
					Msg("Directory does not contain plugin.json, skipping")
				continue
			}
			d.logger.Warn().
				Err(err).
				Str("dir", pluginDir).
				Msg("Failed to check for plugin.json")
			continue
		}

		src := Source{
			Name:         entry.Name(),
			Path:         pluginDir,
			Kind:         kind,
			ManifestPath: manifestPath,
		}
		discovered = append(discovered, src)
		d.logger.Debug().
			Str("name", src.Name).
			Str("path", src.Path).
			Str("kind", string(kind)).
			Msg("Discovered plugin source")
	}

	return discovered, nil
}
