package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harun/stratus/pkg/plugin"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Plugin metrics
	PluginLoadsTotal      *prometheus.CounterVec
	PluginLoadDuration    *prometheus.HistogramVec
	PluginLoadErrorsTotal *prometheus.CounterVec
	PluginsEnabled        prometheus.Gauge
	PluginsRegistered     prometheus.Gauge

	// Engine metrics
	EngineOperationsTotal   *prometheus.CounterVec
	EngineOperationDuration *prometheus.HistogramVec

	// Backup metrics
	BackupsTotal      prometheus.Counter
	BackupErrorsTotal prometheus.Counter
	BackupsPruned     prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Plugin metrics
		PluginLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_loads_total",
				Help: "Total number of plugin load attempts",
			},
			[]string{"plugin_id", "status"},
		),
		PluginLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plugin_load_duration_seconds",
				Help:    "Duration of plugin loads in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"plugin_id"},
		),
		PluginLoadErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_load_errors_total",
				Help: "Total number of plugin load errors",
			},
			[]string{"plugin_id", "error_type"},
		),
		PluginsEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugins_enabled",
				Help: "Number of currently enabled plugins",
			},
		),
		PluginsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugins_registered",
				Help: "Number of plugins in the registry",
			},
		),

		// Engine metrics
		EngineOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_operations_total",
				Help: "Total number of engine operations",
			},
			[]string{"operation", "status"},
		),
		EngineOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		// Backup metrics
		BackupsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backups_total",
				Help: "Total number of state backups created",
			},
		),
		BackupErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backup_errors_total",
				Help: "Total number of backup failures",
			},
		),
		BackupsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backups_pruned_total",
				Help: "Total number of backups removed by rotation",
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Plugin metrics
	m.registry.MustRegister(m.PluginLoadsTotal)
	m.registry.MustRegister(m.PluginLoadDuration)
	m.registry.MustRegister(m.PluginLoadErrorsTotal)
	m.registry.MustRegister(m.PluginsEnabled)
	m.registry.MustRegister(m.PluginsRegistered)

	// Engine metrics
	m.registry.MustRegister(m.EngineOperationsTotal)
	m.registry.MustRegister(m.EngineOperationDuration)

	// Backup metrics
	m.registry.MustRegister(m.BackupsTotal)
	m.registry.MustRegister(m.BackupErrorsTotal)
	m.registry.MustRegister(m.BackupsPruned)
}

// ObservePluginLoad records the outcome of a single plugin load attempt.
// Its signature matches plugin.LoadObserver so it can be handed to
// plugin.WithLoadObserver directly.
func (m *Metrics) ObservePluginLoad(id string, elapsed time.Duration, err error) {
	m.PluginLoadDuration.WithLabelValues(id).Observe(elapsed.Seconds())
	if err == nil {
		m.PluginLoadsTotal.WithLabelValues(id, "success").Inc()
		return
	}
	m.PluginLoadsTotal.WithLabelValues(id, "failure").Inc()
	m.PluginLoadErrorsTotal.WithLabelValues(id, loadErrorType(err)).Inc()
}

func loadErrorType(err error) string {
	var secErr *plugin.SecurityError
	var valErr *plugin.ValidationError
	var dupErr *plugin.DuplicateIDError
	switch {
	case errors.As(err, &secErr):
		return "security"
	case errors.As(err, &valErr):
		return "validation"
	case errors.As(err, &dupErr):
		return "duplicate"
	}
	return "load"
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
