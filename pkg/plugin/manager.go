package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultLoadConcurrency bounds how many distinct plugin loads may run
// at once during a batch
const DefaultLoadConcurrency = 4

// ManagerConfig configures the plugin manager
type ManagerConfig struct {
	Discovery       DiscoveryConfig
	LoadConcurrency int
}

// Manager is the top-level orchestrator of the plugin lifecycle. It is
// the only component that drives Loader and Registry together: it
// discovers candidate sources, batch-loads and validates them, resolves
// a dependency order, and registers and activates plugins sequentially
// in that order. Lifecycle state per plugin id is owned here.
type Manager struct {
	logger    zerolog.Logger
	cfg       ManagerConfig
	registry  *Registry
	loader    *Loader
	resolver  *Resolver
	discovery *Discovery

	mu      sync.Mutex
	records map[string]*Record
	handles map[string]Handle
}

// NewManager creates a manager around an explicitly owned registry and
// loader; no process-wide singletons are involved, so independent
// managers can coexist in tests.
func NewManager(logger zerolog.Logger, cfg ManagerConfig, registry *Registry, loader *Loader) *Manager {
	if cfg.LoadConcurrency <= 0 {
		cfg.LoadConcurrency = DefaultLoadConcurrency
	}
	return &Manager{
		logger:    logger.With().Str("component", "plugin-manager").Logger(),
		cfg:       cfg,
		registry:  registry,
		loader:    loader,
		resolver:  NewResolver(logger),
		discovery: NewDiscovery(logger),
		records:   make(map[string]*Record),
		handles:   make(map[string]Handle),
	}
}

// Registry exposes the descriptor registry for direct queries
// (FindByCapability and friends bypass the manager by design)
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Discover returns candidate plugin sources. No registry state is touched.
func (m *Manager) Discover(ctx context.Context) ([]Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.discovery.Discover(m.cfg.Discovery)
}

// LoadAll loads every candidate concurrently (bounded by the configured
// limit) and validates them. One bad plugin never blocks independent
// ones: failures are recorded per id and the rest proceed. When two
// sources declare the same id, the first successfully validated one wins
// and the later one fails with DuplicateIDError under a source-qualified
// key, reported not dropped. An id already held in a live state keeps
// its running instance when the source is unchanged and is replaced
// cleanly when the source's metadata changed.
func (m *Manager) LoadAll(ctx context.Context, sources []Source) (map[string]*Loaded, *Result) {
	result := newResult()
	loads := make([]*Loaded, len(sources))
	loadErrs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.LoadConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			loads[i], loadErrs[i] = m.loader.Load(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	validated := make(map[string]*Loaded)
	for i, src := range sources {
		if err := loadErrs[i]; err != nil {
			id := failureID(src, err)
			m.logger.Error().Err(err).Str("plugin", id).Msg("Failed to load plugin")
			result.fail(id, err)
			m.recordFailureLocked(id, src, err)
			continue
		}

		loaded := loads[i]
		id := loaded.Descriptor.ID
		if prior, taken := validated[id]; taken {
			dupErr := &DuplicateIDError{ID: id}
			m.logger.Warn().
				Str("plugin", id).
				Str("source", src.Path).
				Msg("Duplicate plugin id, first validated source wins")
			// Keyed by source so the losing entry never collides with
			// the winner's Enabled entry for the bare id.
			result.fail(duplicateKey(id, src), dupErr)
			if prior.Handle != loaded.Handle {
				_ = m.loader.Unload(loaded.Handle)
			}
			continue
		}

		if existing, known := m.records[id]; known && existing.State.live() {
			if existing.Source.Path != loaded.Source.Path {
				dupErr := &DuplicateIDError{ID: id}
				m.logger.Warn().
					Str("plugin", id).
					Str("source", src.Path).
					Msg("Duplicate plugin id, already loaded from another source")
				result.fail(duplicateKey(id, src), dupErr)
				_ = m.loader.Unload(loaded.Handle)
				continue
			}
			if existing.Descriptor.Equal(loaded.Descriptor) {
				// Same source, unchanged metadata: keep the live record
				// and handle so a repeated pass never tears down a
				// running plugin.
				if old := m.handles[id]; old != loaded.Handle {
					_ = m.loader.Unload(loaded.Handle)
				}
				validated[id] = &Loaded{
					Descriptor: existing.Descriptor,
					Handle:     m.handles[id],
					Source:     existing.Source,
				}
				continue
			}
			// The source changed underneath a live plugin. Quiesce and
			// release the old instance before adopting the new one.
			m.logger.Info().
				Str("plugin", id).
				Str("version", loaded.Descriptor.Version).
				Msg("Plugin source changed, replacing instance")
			old := m.handles[id]
			if existing.State == StateEnabled {
				_ = old.Deactivate(ctx)
			}
			if existing.State != StateValidated {
				_ = m.registry.Unregister(id)
			}
			if old != loaded.Handle {
				_ = m.loader.Unload(old)
			}
			delete(m.handles, id)
		}

		// A stale handle can linger behind a failed record; release it
		// before it is overwritten.
		if old, held := m.handles[id]; held && old != loaded.Handle {
			_ = m.loader.Unload(old)
		}

		validated[id] = loaded
		m.records[id] = &Record{
			Descriptor: loaded.Descriptor,
			Source:     loaded.Source,
			State:      StateValidated,
			LoadedAt:   time.Now(),
		}
		m.handles[id] = loaded.Handle
	}

	return validated, result
}

// ResolveOrder computes the activation order for a validated batch,
// checking version constraints against batch members and, for anything
// outside the batch, against the registry.
func (m *Manager) ResolveOrder(validated map[string]*Loaded) ([]string, map[string]error) {
	candidates := make(map[string]Descriptor, len(validated))
	for id, loaded := range validated {
		candidates[id] = loaded.Descriptor
	}
	return m.resolver.Resolve(candidates, m.registry.Get)
}

// EnableAll runs the full pipeline: discover, load, resolve, then
// register and activate sequentially in dependency order.
func (m *Manager) EnableAll(ctx context.Context) (*Result, error) {
	sources, err := m.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("plugin discovery failed: %w", err)
	}
	return m.EnableSources(ctx, sources)
}

// EnableSources loads, resolves and activates the given candidates
func (m *Manager) EnableSources(ctx context.Context, sources []Source) (*Result, error) {
	validated, result := m.LoadAll(ctx, sources)
	if len(validated) == 0 {
		return result, nil
	}

	order, depErrs := m.ResolveOrder(validated)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, depErr := range depErrs {
		m.logger.Error().Err(depErr).Str("plugin", id).Msg("Dependency resolution failed")
		result.fail(id, depErr)
		m.failLocked(id, depErr)
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			result.Skipped = append(result.Skipped, id)
			m.failLocked(id, err)
			continue
		}
		if err := m.enableLocked(ctx, id); err != nil {
			result.fail(id, err)
			continue
		}
		result.Enabled = append(result.Enabled, id)
	}

	m.logger.Info().
		Int("enabled", len(result.Enabled)).
		Int("failed", len(result.Failed)).
		Int("skipped", len(result.Skipped)).
		Msg("Plugin batch complete")

	return result, nil
}

// Enable registers the plugin if needed and invokes its activation hook
func (m *Manager) Enable(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enableLocked(ctx, id)
}

func (m *Manager) enableLocked(ctx context.Context, id string) error {
	record, exists := m.records[id]
	if !exists {
		return &NotFoundError{ID: id}
	}

	switch record.State {
	case StateEnabled:
		return nil
	case StateValidated:
		if err := m.registry.Register(record.Descriptor); err != nil {
			m.failLocked(id, err)
			return err
		}
		record.State = StateRegistered
	case StateRegistered, StateDisabled:
		// ready to activate
	default:
		return fmt.Errorf("plugin %s cannot be enabled from state %s", id, record.State)
	}

	handle := m.handles[id]
	if err := handle.Activate(ctx); err != nil {
		// Failed activation rolls registration back so the registry
		// never exposes a plugin that cannot run
		if record.State == StateRegistered {
			_ = m.registry.Unregister(id)
		}
		_ = m.loader.Unload(handle)
		m.failLocked(id, err)
		return err
	}

	record.State = StateEnabled
	m.logger.Info().Str("plugin", id).Msg("Plugin enabled")
	return nil
}

// Disable quiesces the plugin's handle without unregistering it; the
// descriptor stays discoverable through registry queries.
func (m *Manager) Disable(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disableLocked(ctx, id)
}

func (m *Manager) disableLocked(ctx context.Context, id string) error {
	record, exists := m.records[id]
	if !exists {
		return &NotFoundError{ID: id}
	}
	if record.State != StateEnabled {
		return fmt.Errorf("plugin %s is not enabled", id)
	}

	if err := m.handles[id].Deactivate(ctx); err != nil {
		m.failLocked(id, err)
		return err
	}

	record.State = StateDisabled
	m.logger.Info().Str("plugin", id).Msg("Plugin disabled")
	return nil
}

// Remove disables the plugin if enabled, unregisters its descriptor and
// releases the handle
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.records[id]
	if !exists {
		return &NotFoundError{ID: id}
	}

	if record.State == StateEnabled {
		if err := m.disableLocked(ctx, id); err != nil {
			return err
		}
	}

	if record.State == StateRegistered || record.State == StateDisabled {
		if err := m.registry.Unregister(id); err != nil {
			return err
		}
	}

	if err := m.loader.Unload(m.handles[id]); err != nil {
		m.logger.Warn().Err(err).Str("plugin", id).Msg("Failed to release plugin handle")
	}

	record.State = StateUnloaded
	record.Err = nil
	delete(m.handles, id)
	m.logger.Info().Str("plugin", id).Msg("Plugin removed")
	return nil
}

// Reload removes and re-enables a plugin from its original source
func (m *Manager) Reload(ctx context.Context, id string) error {
	m.mu.Lock()
	record, exists := m.records[id]
	if !exists {
		m.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	src := record.Source
	m.mu.Unlock()

	if err := m.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to unload plugin before reload: %w", err)
	}

	result, err := m.EnableSources(ctx, []Source{src})
	if err != nil {
		return err
	}
	if loadErr, failed := result.Errors[id]; failed {
		return loadErr
	}

	m.logger.Info().Str("plugin", id).Msg("Plugin reloaded")
	return nil
}

// State reports the lifecycle state of a plugin id
func (m *Manager) State(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[id]
	if !exists {
		return "", false
	}
	return record.State, true
}

// Records returns a snapshot of all plugin records
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, *record)
	}
	return records
}

// Failures returns the error for every plugin currently in Failed state
func (m *Manager) Failures() map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := make(map[string]error)
	for id, record := range m.records {
		if record.State == StateFailed && record.Err != nil {
			failures[id] = record.Err
		}
	}
	return failures
}

// Shutdown deactivates and unloads every plugin
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, record := range m.records {
		if record.State.Terminal() {
			continue
		}
		if handle, ok := m.handles[id]; ok {
			if err := m.loader.Unload(handle); err != nil {
				m.logger.Error().Err(err).Str("plugin", id).Msg("Failed to unload plugin")
			}
			delete(m.handles, id)
		}
		if record.State == StateRegistered || record.State == StateEnabled || record.State == StateDisabled {
			_ = m.registry.Unregister(id)
		}
		record.State = StateUnloaded
	}

	m.logger.Info().Msg("Plugin manager shutdown complete")
	return nil
}

// failLocked transitions a plugin to Failed, carrying the cause.
// Terminal states are left untouched.
func (m *Manager) failLocked(id string, err error) {
	record, exists := m.records[id]
	if !exists {
		record = &Record{State: StateFailed}
		m.records[id] = record
	}
	if record.State.Terminal() {
		return
	}
	record.State = StateFailed
	record.Err = err
}

// recordFailureLocked records a load failure for a source whose manifest
// may never have yielded a usable id
func (m *Manager) recordFailureLocked(id string, src Source, err error) {
	if existing, ok := m.records[id]; ok && !existing.State.Terminal() && existing.State != StateDiscovered {
		// A failed source must not clobber a live record under the same id
		return
	}
	m.records[id] = &Record{
		Source: src,
		State:  StateFailed,
		Err:    err,
	}
}

// duplicateKey qualifies a duplicate id with the losing source path so
// the failure entry never shadows the winner's entry for the same id
func duplicateKey(id string, src Source) string {
	return id + " (" + src.Path + ")"
}

// failureID picks the best available identifier for a failed load: the
// manifest id when validation got that far, the source dir name otherwise
func failureID(src Source, err error) string {
	if secErr, ok := err.(*SecurityError); ok && secErr.ID != "" {
		return secErr.ID
	}
	if dupErr, ok := err.(*DuplicateIDError); ok && dupErr.ID != "" {
		return dupErr.ID
	}
	return src.Name
}
