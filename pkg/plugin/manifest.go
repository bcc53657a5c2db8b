package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// pluginIDRegex validates plugin ID format (lowercase alphanumeric with hyphens)
	pluginIDRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

	// semverRegex validates semver version format
	semverRegex = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// ManifestLoader loads and validates plugin manifests
type ManifestLoader struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewManifestLoader creates a new manifest loader
func NewManifestLoader(logger zerolog.Logger) *ManifestLoader {
	return &ManifestLoader{
		logger:       logger.With().Str("component", "manifest-loader").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(ManifestSchema),
	}
}

// LoadManifest loads and validates a plugin manifest from a file.
// Schema or semantic violations yield a ValidationError.
func (m *ManifestLoader) LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	manifest, err := m.Parse(path, data)
	if err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("id", manifest.ID).
		Str("version", manifest.Version).
		Msg("Loaded manifest")

	return manifest, nil
}

// Parse validates manifest bytes against the schema plus semantic checks
func (m *ManifestLoader) Parse(source string, data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, &ValidationError{Source: source, Reasons: []string{"invalid JSON: " + err.Error()}}
	}

	if reasons := m.validateSchema(data); len(reasons) > 0 {
		return nil, &ValidationError{Source: source, Reasons: reasons}
	}

	if reasons := validateManifest(&manifest); len(reasons) > 0 {
		return nil, &ValidationError{Source: source, Reasons: reasons}
	}

	return &manifest, nil
}

// validateSchema validates the manifest against the JSON schema
func (m *ManifestLoader) validateSchema(data []byte) []string {
	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(m.schemaLoader, documentLoader)
	if err != nil {
		return []string{"schema validation error: " + err.Error()}
	}

	if result.Valid() {
		return nil
	}

	reasons := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		reasons = append(reasons, resultErr.String())
	}
	return reasons
}

// validateManifest performs additional validation beyond JSON schema
func validateManifest(manifest *Manifest) []string {
	var reasons []string

	if !pluginIDRegex.MatchString(manifest.ID) {
		reasons = append(reasons, fmt.Sprintf("invalid plugin ID format: %s (must be lowercase alphanumeric with hyphens)", manifest.ID))
	}

	if !semverRegex.MatchString(manifest.Version) {
		reasons = append(reasons, fmt.Sprintf("invalid version format: %s (must be semver: X.Y.Z)", manifest.Version))
	}

	seen := make(map[string]struct{}, len(manifest.Capabilities))
	for i, cap := range manifest.Capabilities {
		if cap.Type == "" || cap.Name == "" {
			reasons = append(reasons, fmt.Sprintf("capability %d: type and name are required", i))
			continue
		}
		if _, dup := seen[cap.Key()]; dup {
			reasons = append(reasons, fmt.Sprintf("capability %d: duplicate declaration %s", i, cap.Key()))
		}
		seen[cap.Key()] = struct{}{}
	}

	for depID, constraint := range manifest.Dependencies {
		if !pluginIDRegex.MatchString(depID) {
			reasons = append(reasons, fmt.Sprintf("dependency %s: invalid plugin ID format", depID))
		}
		if depID == manifest.ID {
			reasons = append(reasons, fmt.Sprintf("dependency %s: plugin cannot depend on itself", depID))
		}
		if constraint != "" {
			if _, err := semver.NewConstraint(constraint); err != nil {
				reasons = append(reasons, fmt.Sprintf("dependency %s: invalid version constraint %q", depID, constraint))
			}
		}
	}

	return reasons
}

// ParseManifest parses a manifest from JSON bytes without validation
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}
	return &manifest, nil
}
