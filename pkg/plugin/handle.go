package plugin

import (
	"context"
	"sync"
)

// Handle is the runtime object through which a loaded plugin is started
// and stopped, distinct from its static Descriptor. A freshly loaded
// handle performs no side effects until Activate is called.
type Handle interface {
	// PluginID returns the id of the plugin this handle controls
	PluginID() string

	// Activate starts the plugin. Calling Activate on an already active
	// handle is an error.
	Activate(ctx context.Context) error

	// Deactivate stops the plugin. No-op when not active.
	Deactivate(ctx context.Context) error

	// Active reports whether the plugin is currently running
	Active() bool

	// Close releases all resources held by the handle. Idempotent; an
	// active handle is deactivated first.
	Close() error
}

// FuncHandle is an in-process handle backed by explicit activate and
// deactivate callbacks. Used for builtin plugins and tests.
type FuncHandle struct {
	id         string
	activate   func(ctx context.Context) error
	deactivate func(ctx context.Context) error

	mu     sync.Mutex
	active bool
	closed bool
}

// NewFuncHandle creates a handle from activation callbacks; either
// callback may be nil.
func NewFuncHandle(id string, activate, deactivate func(ctx context.Context) error) *FuncHandle {
	return &FuncHandle{
		id:         id,
		activate:   activate,
		deactivate: deactivate,
	}
}

func (h *FuncHandle) PluginID() string {
	return h.id
}

func (h *FuncHandle) Activate(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return &NotFoundError{ID: h.id}
	}
	if h.active {
		return nil
	}
	if h.activate != nil {
		if err := h.activate(ctx); err != nil {
			return err
		}
	}
	h.active = true
	return nil
}

func (h *FuncHandle) Deactivate(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deactivateLocked(ctx)
}

func (h *FuncHandle) deactivateLocked(ctx context.Context) error {
	if !h.active {
		return nil
	}
	if h.deactivate != nil {
		if err := h.deactivate(ctx); err != nil {
			return err
		}
	}
	h.active = false
	return nil
}

func (h *FuncHandle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *FuncHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	err := h.deactivateLocked(context.Background())
	h.closed = true
	return err
}
