package plugin

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	goplugin "github.com/hashicorp/go-plugin"
	"github.com/rs/zerolog"
)

// ExecHandle runs an executable plugin as a subprocess via go-plugin.
// The subprocess is spawned on Activate, not at load time, so a loaded
// but never-activated plugin has no runtime footprint.
type ExecHandle struct {
	id      string
	binPath string
	config  map[string]any
	logger  zerolog.Logger

	mu     sync.Mutex
	client *goplugin.Client
	ext    Extension
	active bool
	closed bool
}

// NewExecHandle creates a handle for the plugin executable at binPath
func NewExecHandle(id, binPath string, config map[string]any, logger zerolog.Logger) *ExecHandle {
	return &ExecHandle{
		id:      id,
		binPath: binPath,
		config:  config,
		logger:  logger.With().Str("component", "exec-handle").Str("plugin", id).Logger(),
	}
}

func (h *ExecHandle) PluginID() string {
	return h.id
}

// Activate spawns the plugin subprocess, connects over RPC and invokes
// the plugin's activation hook. Any failure tears the subprocess down.
func (h *ExecHandle) Activate(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return &NotFoundError{ID: h.id}
	}
	if h.active {
		return nil
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              exec.Command(h.binPath),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return fmt.Errorf("failed to connect to plugin %s: %w", h.id, err)
	}

	raw, err := rpcClient.Dispense("plugin")
	if err != nil {
		client.Kill()
		return fmt.Errorf("failed to dispense plugin %s: %w", h.id, err)
	}

	ext, ok := raw.(Extension)
	if !ok {
		client.Kill()
		return fmt.Errorf("plugin %s: unexpected extension type", h.id)
	}

	if err := ext.Activate(ctx, h.config); err != nil {
		client.Kill()
		return fmt.Errorf("failed to activate plugin %s: %w", h.id, err)
	}

	h.client = client
	h.ext = ext
	h.active = true
	h.logger.Info().Str("bin", h.binPath).Msg("Plugin activated")
	return nil
}

// Deactivate invokes the plugin's deactivation hook and kills the
// subprocess. No-op when not active.
func (h *ExecHandle) Deactivate(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deactivateLocked(ctx)
}

func (h *ExecHandle) deactivateLocked(ctx context.Context) error {
	if !h.active {
		return nil
	}

	if err := h.ext.Deactivate(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Plugin deactivation hook failed")
	}
	h.client.Kill()

	h.client = nil
	h.ext = nil
	h.active = false
	h.logger.Info().Msg("Plugin deactivated")
	return nil
}

func (h *ExecHandle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Close deactivates if needed and releases the handle. Idempotent.
func (h *ExecHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	err := h.deactivateLocked(context.Background())
	h.closed = true
	return err
}
