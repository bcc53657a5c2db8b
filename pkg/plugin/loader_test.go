package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAudit lets tests script the audit verdict and observe calls
type stubAudit struct {
	report  AuditReport
	err     error
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *stubAudit) Validate(ctx context.Context, src Source, m *Manifest) (AuditReport, error) {
	s.calls.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return AuditReport{}, ctx.Err()
		}
	}
	return s.report, s.err
}

func writePluginSource(t *testing.T, root, id string, manifest string) Source {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	manifestPath := writeManifest(t, dir, manifest)
	return Source{
		Name:         id,
		Path:         dir,
		Kind:         SourceWorkspace,
		ManifestPath: manifestPath,
	}
}

func simpleManifest(id string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"version": "1.0.0",
		"capabilities": [{"type": "provider", "name": %q}]
	}`, id, id)
}

func TestLoader_Load(t *testing.T) {
	t.Run("valid source yields descriptor and inert handle", func(t *testing.T) {
		loader := NewLoader(testLogger(), NoopAudit{})
		src := writePluginSource(t, t.TempDir(), "aws", simpleManifest("aws"))

		loaded, err := loader.Load(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, "aws", loaded.Descriptor.ID)
		assert.Equal(t, "aws", loaded.Handle.PluginID())
		assert.False(t, loaded.Handle.Active(), "handle must be inert until Activate")
	})

	t.Run("invalid manifest yields ValidationError", func(t *testing.T) {
		loader := NewLoader(testLogger(), NoopAudit{})
		src := writePluginSource(t, t.TempDir(), "bad", `{"id": "bad"}`)

		_, err := loader.Load(context.Background(), src)
		var valErr *ValidationError
		require.True(t, errors.As(err, &valErr))
	})

	t.Run("failed audit yields SecurityError", func(t *testing.T) {
		audit := &stubAudit{report: AuditReport{
			Passed:   false,
			Findings: []Finding{{Severity: SeverityCritical, Description: "embedded credentials"}},
		}}
		loader := NewLoader(testLogger(), audit)
		src := writePluginSource(t, t.TempDir(), "rogue", simpleManifest("rogue"))

		_, err := loader.Load(context.Background(), src)
		var secErr *SecurityError
		require.True(t, errors.As(err, &secErr))
		assert.Equal(t, "rogue", secErr.ID)
		require.Len(t, secErr.Findings, 1)
		assert.Equal(t, SeverityCritical, secErr.Findings[0].Severity)
	})

	t.Run("audit service failure is wrapped", func(t *testing.T) {
		audit := &stubAudit{err: errors.New("scanner offline")}
		loader := NewLoader(testLogger(), audit)
		src := writePluginSource(t, t.TempDir(), "aws", simpleManifest("aws"))

		_, err := loader.Load(context.Background(), src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scanner offline")
	})

	t.Run("declared executable must exist", func(t *testing.T) {
		loader := NewLoader(testLogger(), NoopAudit{})
		src := writePluginSource(t, t.TempDir(), "proc", `{
			"id": "proc",
			"version": "1.0.0",
			"capabilities": [{"type": "provisioner", "name": "shell"}],
			"main": "bin/proc-plugin"
		}`)

		_, err := loader.Load(context.Background(), src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "executable not found")
	})

	t.Run("cancelled load returns promptly", func(t *testing.T) {
		audit := &stubAudit{
			report:  AuditReport{Passed: true},
			release: make(chan struct{}),
		}
		loader := NewLoader(testLogger(), audit)
		src := writePluginSource(t, t.TempDir(), "slow", simpleManifest("slow"))

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := loader.Load(ctx, src)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoader_ConcurrentLoadsJoin(t *testing.T) {
	audit := &stubAudit{
		report:  AuditReport{Passed: true},
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}

	var factoryCalls atomic.Int32
	loader := NewLoader(testLogger(), audit, WithHandleFactory(func(m *Manifest, src Source) (Handle, error) {
		factoryCalls.Add(1)
		return NewFuncHandle(m.ID, nil, nil), nil
	}))

	src := writePluginSource(t, t.TempDir(), "shared", simpleManifest("shared"))

	var wg sync.WaitGroup
	results := make([]*Loaded, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = loader.Load(context.Background(), src)
	}()
	<-audit.entered // first load is inside the audit call

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = loader.Load(context.Background(), src)
	}()
	time.Sleep(50 * time.Millisecond) // second load joins the in-flight attempt
	close(audit.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), audit.calls.Load(), "joined load must not re-run the audit")
	assert.Equal(t, int32(1), factoryCalls.Load())
	assert.Same(t, results[0].Handle, results[1].Handle)
}

func TestLoader_Unload(t *testing.T) {
	loader := NewLoader(testLogger(), NoopAudit{})

	t.Run("nil handle is a no-op", func(t *testing.T) {
		assert.NoError(t, loader.Unload(nil))
	})

	t.Run("deactivates active handle and is idempotent", func(t *testing.T) {
		deactivated := 0
		handle := NewFuncHandle("aws", nil, func(ctx context.Context) error {
			deactivated++
			return nil
		})
		require.NoError(t, handle.Activate(context.Background()))

		require.NoError(t, loader.Unload(handle))
		assert.Equal(t, 1, deactivated)
		assert.False(t, handle.Active())

		// second unload is a no-op, not an error
		require.NoError(t, loader.Unload(handle))
		assert.Equal(t, 1, deactivated)
	})
}

func TestLoader_LoadObserver(t *testing.T) {
	type attempt struct {
		id      string
		elapsed time.Duration
		err     error
	}
	var attempts []attempt
	loader := NewLoader(testLogger(), NoopAudit{}, WithLoadObserver(func(id string, elapsed time.Duration, err error) {
		attempts = append(attempts, attempt{id, elapsed, err})
	}))

	good := writePluginSource(t, t.TempDir(), "aws", simpleManifest("aws"))
	_, err := loader.Load(context.Background(), good)
	require.NoError(t, err)

	// manifest without version never yields a usable id
	broken := writePluginSource(t, t.TempDir(), "broken", `{"id": "broken"}`)
	_, err = loader.Load(context.Background(), broken)
	require.Error(t, err)

	require.Len(t, attempts, 2)
	assert.Equal(t, "aws", attempts[0].id)
	assert.NoError(t, attempts[0].err)
	assert.GreaterOrEqual(t, attempts[0].elapsed, time.Duration(0))
	assert.Equal(t, "broken", attempts[1].id)
	assert.Error(t, attempts[1].err)
}

func TestFuncHandle_Lifecycle(t *testing.T) {
	activations := 0
	handle := NewFuncHandle("aws", func(ctx context.Context) error {
		activations++
		return nil
	}, nil)

	require.NoError(t, handle.Activate(context.Background()))
	assert.True(t, handle.Active())
	// re-activation of an active handle is a no-op
	require.NoError(t, handle.Activate(context.Background()))
	assert.Equal(t, 1, activations)

	require.NoError(t, handle.Deactivate(context.Background()))
	assert.False(t, handle.Active())

	require.NoError(t, handle.Close())
	err := handle.Activate(context.Background())
	assert.Error(t, err, "closed handle cannot be re-activated")
}

func TestFuncHandle_ActivationError(t *testing.T) {
	boom := errors.New("activation failed")
	handle := NewFuncHandle("aws", func(ctx context.Context) error {
		return boom
	}, nil)

	require.ErrorIs(t, handle.Activate(context.Background()), boom)
	assert.False(t, handle.Active())
}
