package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscovery_Discover(t *testing.T) {
	discovery := NewDiscovery(testLogger())

	t.Run("finds plugins across configured directories", func(t *testing.T) {
		builtin := t.TempDir()
		workspace := t.TempDir()
		extra := t.TempDir()
		writePluginSource(t, builtin, "core", simpleManifest("core"))
		writePluginSource(t, workspace, "aws", simpleManifest("aws"))
		writePluginSource(t, extra, "custom", simpleManifest("custom"))

		sources, err := discovery.Discover(DiscoveryConfig{
			BuiltinDir:   builtin,
			WorkspaceDir: workspace,
			ExtraDirs:    []string{extra, ""},
		})
		require.NoError(t, err)
		require.Len(t, sources, 3)

		kinds := map[string]SourceKind{}
		for _, src := range sources {
			kinds[src.Name] = src.Kind
		}
		assert.Equal(t, SourceBuiltin, kinds["core"])
		assert.Equal(t, SourceWorkspace, kinds["aws"])
		assert.Equal(t, SourceExtra, kinds["custom"])
	})

	t.Run("skips directories without a manifest", func(t *testing.T) {
		workspace := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(workspace, "not-a-plugin"), 0755))
		writePluginSource(t, workspace, "real", simpleManifest("real"))

		sources, err := discovery.Discover(DiscoveryConfig{WorkspaceDir: workspace})
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, "real", sources[0].Name)
	})

	t.Run("missing directories are skipped quietly", func(t *testing.T) {
		sources, err := discovery.Discover(DiscoveryConfig{
			BuiltinDir:   filepath.Join(t.TempDir(), "nope"),
			WorkspaceDir: "",
		})
		require.NoError(t, err)
		assert.Empty(t, sources)
	})

	t.Run("plain files in plugin dirs are ignored", func(t *testing.T) {
		workspace := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(workspace, "stray.txt"), []byte("x"), 0644))

		sources, err := discovery.Discover(DiscoveryConfig{WorkspaceDir: workspace})
		require.NoError(t, err)
		assert.Empty(t, sources)
	})
}
