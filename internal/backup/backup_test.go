package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte(`{"serial": 1}`), 0644))

	return NewManager(Config{
		StatePath:  statePath,
		Dir:        filepath.Join(dir, "backups"),
		MaxBackups: 10,
	}, nil), statePath
}

func TestManagerCreate(t *testing.T) {
	manager, _ := newTestManager(t)

	path, err := manager.Create()
	require.NoError(t, err)
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"serial": 1}`, string(data))

	backups, err := manager.List()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, path, backups[0].Path)
}

func TestManagerCreateMissingState(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(Config{
		StatePath: filepath.Join(dir, "nope.json"),
		Dir:       filepath.Join(dir, "backups"),
	}, nil)

	path, err := manager.Create()
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestManagerListEmpty(t *testing.T) {
	manager, _ := newTestManager(t)

	backups, err := manager.List()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestManagerPruneByCount(t *testing.T) {
	manager, _ := newTestManager(t)
	manager.config.MaxBackups = 3

	// Write backups with distinct timestamps directly so pruning has
	// a deterministic ordering to work with.
	require.NoError(t, os.MkdirAll(manager.config.Dir, 0755))
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("state-%s.json", base.Add(time.Duration(i)*time.Minute).Format(timestampLayout))
		require.NoError(t, os.WriteFile(filepath.Join(manager.config.Dir, name), []byte("x"), 0644))
	}

	require.NoError(t, manager.Prune())

	backups, err := manager.List()
	require.NoError(t, err)
	require.Len(t, backups, 3)
	// Newest three survive
	for i := 1; i < len(backups); i++ {
		assert.True(t, backups[i-1].CreatedAt.After(backups[i].CreatedAt))
	}
}

func TestManagerPruneByAge(t *testing.T) {
	manager, _ := newTestManager(t)
	manager.config.MaxBackups = 0
	manager.config.MaxAgeDays = 7

	require.NoError(t, os.MkdirAll(manager.config.Dir, 0755))
	old := fmt.Sprintf("state-%s.json", time.Now().UTC().AddDate(0, 0, -30).Format(timestampLayout))
	fresh := fmt.Sprintf("state-%s.json", time.Now().UTC().Format(timestampLayout))
	require.NoError(t, os.WriteFile(filepath.Join(manager.config.Dir, old), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(manager.config.Dir, fresh), []byte("x"), 0644))

	require.NoError(t, manager.Prune())

	backups, err := manager.List()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Path, fresh)
}

func TestManagerListIgnoresStrayFiles(t *testing.T) {
	manager, _ := newTestManager(t)
	require.NoError(t, os.MkdirAll(manager.config.Dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(manager.config.Dir, "README.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(manager.config.Dir, "state-garbage.json"), []byte("x"), 0644))

	backups, err := manager.List()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestManagerRestore(t *testing.T) {
	manager, statePath := newTestManager(t)

	backupPath, err := manager.Create()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(statePath, []byte(`{"serial": 2}`), 0644))
	require.NoError(t, manager.Restore(backupPath))

	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Equal(t, `{"serial": 1}`, string(data))
}

func TestManagerRestoreMissing(t *testing.T) {
	manager, _ := newTestManager(t)
	assert.Error(t, manager.Restore(filepath.Join(t.TempDir(), "nope.json")))
}

func TestSchedulerEmptySchedule(t *testing.T) {
	manager, _ := newTestManager(t)
	scheduler := NewScheduler(manager)

	require.NoError(t, scheduler.Start(""))
	scheduler.Stop()
}

func TestSchedulerInvalidSchedule(t *testing.T) {
	manager, _ := newTestManager(t)
	scheduler := NewScheduler(manager)

	assert.Error(t, scheduler.Start("not a schedule"))
}

func TestSchedulerStartStop(t *testing.T) {
	manager, _ := newTestManager(t)
	scheduler := NewScheduler(manager)

	require.NoError(t, scheduler.Start("@daily"))
	scheduler.Stop()
}
