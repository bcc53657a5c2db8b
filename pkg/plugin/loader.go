package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Loaded is the result of a successful load: the validated descriptor
// plus the handle through which the plugin is activated later.
type Loaded struct {
	Descriptor Descriptor
	Handle     Handle
	Source     Source
}

// HandleFactory builds an activation handle for a validated plugin.
// The default factory returns an ExecHandle when the manifest declares a
// main executable and an inert FuncHandle otherwise.
type HandleFactory func(manifest *Manifest, src Source) (Handle, error)

// Loader resolves a plugin source to a validated descriptor and an
// executable handle. Parsing and auditing are I/O bound and never touch
// registry state; registration is the Manager's job.
type Loader struct {
	logger   zerolog.Logger
	manifest *ManifestLoader
	audit    AuditService
	factory  HandleFactory
	configs  map[string]map[string]any
	observer LoadObserver

	// flight joins concurrent loads of the same plugin id, so at most
	// one load per id is in flight at any time
	flight singleflight.Group
}

// LoadObserver is notified after every load attempt with the plugin id
// (the source name when the manifest never yielded one), the time the
// attempt took and its error, if any.
type LoadObserver func(id string, elapsed time.Duration, err error)

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithHandleFactory overrides how activation handles are built
func WithHandleFactory(factory HandleFactory) LoaderOption {
	return func(l *Loader) { l.factory = factory }
}

// WithLoadObserver registers a callback observing load outcomes
func WithLoadObserver(observer LoadObserver) LoaderOption {
	return func(l *Loader) { l.observer = observer }
}

// WithPluginConfigs supplies per-plugin configuration passed to handles
func WithPluginConfigs(configs map[string]map[string]any) LoaderOption {
	return func(l *Loader) { l.configs = configs }
}

// NewLoader creates a new plugin loader
func NewLoader(logger zerolog.Logger, audit AuditService, opts ...LoaderOption) *Loader {
	if audit == nil {
		audit = NoopAudit{}
	}
	l := &Loader{
		logger:   logger.With().Str("component", "plugin-loader").Logger(),
		manifest: NewManifestLoader(logger),
		audit:    audit,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.factory == nil {
		l.factory = l.defaultHandle
	}
	return l
}

// Load parses and validates the manifest at src, runs the audit service,
// and returns the descriptor with an inert activation handle. Concurrent
// loads for the same plugin id are joined to a single in-flight attempt.
// A failed or cancelled load releases everything it acquired; nothing is
// ever registered by the loader itself.
func (l *Loader) Load(ctx context.Context, src Source) (*Loaded, error) {
	start := time.Now()
	manifest, err := l.manifest.LoadManifest(src.ManifestPath)
	if err != nil {
		l.observe(src.Name, start, err)
		return nil, err
	}

	// Identical concurrent requests join one in-flight attempt; a same-id
	// request from a different source runs separately and loses the
	// duplicate tie-break at registration instead
	ch := l.flight.DoChan(manifest.ID+"\x00"+src.Path, func() (interface{}, error) {
		return l.loadValidated(ctx, src, manifest)
	})

	select {
	case res := <-ch:
		l.observe(manifest.ID, start, res.Err)
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.logger.Debug().Str("plugin", manifest.ID).Msg("Joined in-flight load")
		}
		return res.Val.(*Loaded), nil
	case <-ctx.Done():
		l.observe(manifest.ID, start, ctx.Err())
		return nil, ctx.Err()
	}
}

func (l *Loader) observe(id string, start time.Time, err error) {
	if l.observer != nil {
		l.observer(id, time.Since(start), err)
	}
}

func (l *Loader) loadValidated(ctx context.Context, src Source, manifest *Manifest) (*Loaded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := l.audit.Validate(ctx, src, manifest)
	if err != nil {
		return nil, fmt.Errorf("audit of plugin %s failed: %w", manifest.ID, err)
	}
	if !report.Passed {
		l.logger.Warn().
			Str("plugin", manifest.ID).
			Int("findings", len(report.Findings)).
			Msg("Plugin failed security audit")
		return nil, &SecurityError{ID: manifest.ID, Findings: report.Findings}
	}

	handle, err := l.factory(manifest, src)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		_ = handle.Close()
		return nil, err
	}

	l.logger.Info().
		Str("plugin", manifest.ID).
		Str("version", manifest.Version).
		Str("source", string(src.Kind)).
		Msg("Plugin loaded")

	return &Loaded{
		Descriptor: manifest.Descriptor(),
		Handle:     handle,
		Source:     src,
	}, nil
}

// Unload deactivates the handle if active and releases its resources.
// Unloading a nil or already-closed handle is a no-op.
func (l *Loader) Unload(handle Handle) error {
	if handle == nil {
		return nil
	}
	if err := handle.Close(); err != nil {
		return fmt.Errorf("failed to unload plugin %s: %w", handle.PluginID(), err)
	}
	return nil
}

func (l *Loader) defaultHandle(manifest *Manifest, src Source) (Handle, error) {
	config := l.configs[manifest.ID]

	if manifest.Main == "" {
		// Capability-only plugin; activation just flips runtime state
		return NewFuncHandle(manifest.ID, nil, nil), nil
	}

	binPath := filepath.Join(src.Path, manifest.Main)
	if _, err := os.Stat(binPath); err != nil {
		return nil, fmt.Errorf("plugin executable not found: %s", binPath)
	}
	return NewExecHandle(manifest.ID, binPath, config, l.logger), nil
}
