package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/harun/stratus/pkg/plugin"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	if m.registry == nil {
		t.Error("Registry is nil")
	}

	// Verify plugin metrics
	if m.PluginLoadsTotal == nil {
		t.Error("PluginLoadsTotal is nil")
	}
	if m.PluginLoadDuration == nil {
		t.Error("PluginLoadDuration is nil")
	}
	if m.PluginLoadErrorsTotal == nil {
		t.Error("PluginLoadErrorsTotal is nil")
	}
	if m.PluginsEnabled == nil {
		t.Error("PluginsEnabled is nil")
	}
	if m.PluginsRegistered == nil {
		t.Error("PluginsRegistered is nil")
	}

	// Verify engine metrics
	if m.EngineOperationsTotal == nil {
		t.Error("EngineOperationsTotal is nil")
	}
	if m.EngineOperationDuration == nil {
		t.Error("EngineOperationDuration is nil")
	}

	// Verify backup metrics
	if m.BackupsTotal == nil {
		t.Error("BackupsTotal is nil")
	}
	if m.BackupErrorsTotal == nil {
		t.Error("BackupErrorsTotal is nil")
	}
	if m.BackupsPruned == nil {
		t.Error("BackupsPruned is nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	// Record some sample metrics so they appear in output
	m.PluginLoadsTotal.WithLabelValues("aws", "success").Inc()
	m.PluginLoadDuration.WithLabelValues("aws").Observe(0.2)
	m.PluginLoadErrorsTotal.WithLabelValues("aws", "validation").Inc()
	m.EngineOperationsTotal.WithLabelValues("deploy", "success").Inc()
	m.EngineOperationDuration.WithLabelValues("deploy").Observe(1.0)

	handler := m.Handler()
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"plugin_loads_total",
		"plugin_load_duration_seconds",
		"plugin_load_errors_total",
		"plugins_enabled",
		"plugins_registered",
		"engine_operations_total",
		"engine_operation_duration_seconds",
		"backups_total",
		"backup_errors_total",
		"backups_pruned_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}

func TestMetricsRegistry(t *testing.T) {
	m := NewMetrics()

	registry := m.Registry()
	if registry == nil {
		t.Fatal("Registry returned nil")
	}

	m.PluginLoadsTotal.WithLabelValues("aws", "success").Inc()
	m.PluginLoadDuration.WithLabelValues("aws").Observe(0.2)
	m.PluginLoadErrorsTotal.WithLabelValues("aws", "security").Inc()
	m.EngineOperationsTotal.WithLabelValues("plan", "success").Inc()
	m.EngineOperationDuration.WithLabelValues("plan").Observe(0.7)

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	metricNames := make(map[string]bool)
	for _, mf := range metricFamilies {
		metricNames[*mf.Name] = true
	}

	expectedCount := 10 // Total number of metrics
	if len(metricNames) != expectedCount {
		t.Errorf("Expected %d metrics, got %d", expectedCount, len(metricNames))
	}
}

func TestObservePluginLoad(t *testing.T) {
	m := NewMetrics()

	m.ObservePluginLoad("aws", 20*time.Millisecond, nil)
	m.ObservePluginLoad("aws", 25*time.Millisecond, nil)
	m.ObservePluginLoad("rogue", 5*time.Millisecond, &plugin.SecurityError{ID: "rogue"})
	m.ObservePluginLoad("broken", time.Millisecond, &plugin.ValidationError{Source: "broken", Reasons: []string{"version is required"}})
	m.ObservePluginLoad("flaky", time.Millisecond, errors.New("manifest unreadable"))

	if got := testutil.ToFloat64(m.PluginLoadsTotal.WithLabelValues("aws", "success")); got != 2 {
		t.Errorf("aws success loads: expected 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.PluginLoadsTotal.WithLabelValues("rogue", "failure")); got != 1 {
		t.Errorf("rogue failure loads: expected 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.PluginLoadErrorsTotal.WithLabelValues("rogue", "security")); got != 1 {
		t.Errorf("rogue security errors: expected 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.PluginLoadErrorsTotal.WithLabelValues("broken", "validation")); got != 1 {
		t.Errorf("broken validation errors: expected 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.PluginLoadErrorsTotal.WithLabelValues("flaky", "load")); got != 1 {
		t.Errorf("flaky load errors: expected 1, got %f", got)
	}

	// one duration series per distinct plugin id
	if got := testutil.CollectAndCount(m.PluginLoadDuration); got != 4 {
		t.Errorf("duration series: expected 4, got %d", got)
	}
}

func TestPluginGauges(t *testing.T) {
	m := NewMetrics()

	m.PluginsEnabled.Set(3)
	m.PluginsRegistered.Set(5)

	metricFamilies, _ := m.registry.Gather()
	for _, mf := range metricFamilies {
		switch *mf.Name {
		case "plugins_enabled":
			if *mf.Metric[0].Gauge.Value != 3 {
				t.Errorf("Expected value 3, got %f", *mf.Metric[0].Gauge.Value)
			}
		case "plugins_registered":
			if *mf.Metric[0].Gauge.Value != 5 {
				t.Errorf("Expected value 5, got %f", *mf.Metric[0].Gauge.Value)
			}
		}
	}
}

func TestMetricsIsolation(t *testing.T) {
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.BackupsTotal.Inc()
	m1.BackupsTotal.Inc()
	m2.BackupsTotal.Inc()

	metricFamilies1, _ := m1.registry.Gather()
	for _, mf := range metricFamilies1 {
		if *mf.Name == "backups_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 2 {
				t.Errorf("m1: Expected value 2, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}

	metricFamilies2, _ := m2.registry.Gather()
	for _, mf := range metricFamilies2 {
		if *mf.Name == "backups_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 1 {
				t.Errorf("m2: Expected value 1, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}
}
