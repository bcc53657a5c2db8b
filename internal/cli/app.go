package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/harun/stratus/internal/audit"
	"github.com/harun/stratus/internal/backup"
	"github.com/harun/stratus/internal/config"
	"github.com/harun/stratus/internal/engine"
	"github.com/harun/stratus/internal/logger"
	"github.com/harun/stratus/internal/metrics"
	"github.com/harun/stratus/internal/store"
	"github.com/harun/stratus/pkg/plugin"
)

// app wires the components a single command invocation needs. There is
// no daemon; every command builds its world, runs, and tears it down.
type app struct {
	cfg        *config.Config
	logs       *logger.Logger
	metrics    *metrics.Metrics
	manager    *plugin.Manager
	engine     *engine.Engine
	store      *store.Store
	backups    *backup.Manager
	metricsSrv *http.Server
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	logs, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	zl := logs.GetZerolog()

	m := metrics.NewMetrics()

	var auditSvc plugin.AuditService = plugin.NoopAudit{}
	if cfg.Plugins.Audit {
		auditSvc = audit.NewScanner()
	}

	registry := plugin.NewRegistry()
	loader := plugin.NewLoader(zl, auditSvc,
		plugin.WithPluginConfigs(cfg.Plugins.Configs),
		plugin.WithLoadObserver(m.ObservePluginLoad),
	)
	manager := plugin.NewManager(zl, plugin.ManagerConfig{
		Discovery: plugin.DiscoveryConfig{
			BuiltinDir:   cfg.Plugins.BuiltinDir,
			WorkspaceDir: cfg.Plugins.WorkspaceDir,
			ExtraDirs:    cfg.Plugins.ExtraDirs,
		},
		LoadConcurrency: cfg.Plugins.LoadConcurrency,
	}, registry, loader)

	st, err := store.Open(filepath.Join(cfg.DataDir, "plugins.db"))
	if err != nil {
		logs.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logs:    logs,
		metrics: m,
		manager: manager,
		engine: engine.New(engine.Config{
			Workspace:   cfg.Engine.Workspace,
			Parallelism: cfg.Engine.Parallelism,
		}, registry, m),
		store: st,
		backups: backup.NewManager(backup.Config{
			StatePath:  cfg.StatePath,
			Dir:        cfg.Backup.Dir,
			MaxBackups: cfg.Backup.MaxBackups,
			MaxAgeDays: cfg.Backup.MaxAgeDays,
		}, m),
	}

	if metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		a.metricsSrv = &http.Server{Addr: metricsListen, Handler: mux}
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	return a, nil
}

// enablePlugins activates every discovered plugin, then re-applies the
// persisted disabled flags from the store.
func (a *app) enablePlugins(ctx context.Context) (*plugin.Result, error) {
	result, err := a.manager.EnableAll(ctx)
	if err != nil {
		return nil, err
	}

	installed, err := a.store.List()
	if err != nil {
		return nil, err
	}
	for _, row := range installed {
		if row.Enabled {
			continue
		}
		if state, ok := a.manager.State(row.ID); ok && state == plugin.StateEnabled {
			if err := a.manager.Disable(ctx, row.ID); err != nil {
				return nil, err
			}
		}
	}

	enabled := 0
	for _, rec := range a.manager.Records() {
		if rec.State == plugin.StateEnabled {
			enabled++
		}
	}
	a.metrics.PluginsEnabled.Set(float64(enabled))
	a.metrics.PluginsRegistered.Set(float64(a.manager.Registry().Len()))

	return result, nil
}

func (a *app) close() {
	ctx := context.Background()
	if err := a.manager.Shutdown(ctx); err != nil {
		zl := a.logs.GetZerolog()
		zl.Warn().Err(err).Msg("Plugin shutdown failed")
	}
	if a.metricsSrv != nil {
		a.metricsSrv.Close()
	}
	a.store.Close()
	a.logs.Close()
}

// runEngineOp is the shared body of the provisioning commands
func runEngineOp(op func(*app, context.Context) (*engine.Result, error)) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	result, err := a.enablePlugins(ctx)
	if err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		fmt.Printf("Warning: %d plugin(s) failed to enable: %v\n", len(result.Failed), result.Failed)
	}

	res, err := op(a, ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: %s\n", res.RunID, res.Message)
	if len(res.Providers) > 0 {
		fmt.Printf("Providers: %v\n", res.Providers)
	}
	return nil
}
