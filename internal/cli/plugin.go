package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/stratus/internal/fsutil"
	"github.com/harun/stratus/internal/store"
	"github.com/harun/stratus/pkg/plugin"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage plugins",
	Long:  `Inspect, install, and control the lifecycle of stratus plugins.`,
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered plugins",
	RunE:  runPluginList,
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <path>",
	Short: "Install a plugin from a local directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginInstall,
}

var pluginEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginEnable,
}

var pluginDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginDisable,
}

var pluginRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginRemove,
}

var pluginReloadCmd = &cobra.Command{
	Use:   "reload <id>",
	Short: "Reload a plugin from its source",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginReload,
}

func init() {
	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginInstallCmd)
	pluginCmd.AddCommand(pluginEnableCmd)
	pluginCmd.AddCommand(pluginDisableCmd)
	pluginCmd.AddCommand(pluginRemoveCmd)
	pluginCmd.AddCommand(pluginReloadCmd)
	rootCmd.AddCommand(pluginCmd)
}

func runPluginList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	// Load without activating so listing has no side effects
	sources, err := a.manager.Discover(ctx)
	if err != nil {
		return err
	}
	_, result := a.manager.LoadAll(ctx, sources)

	installed := make(map[string]store.InstalledPlugin)
	rows, err := a.store.List()
	if err != nil {
		return err
	}
	for _, row := range rows {
		installed[row.ID] = row
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tSTATE\tCAPABILITIES")
	for _, rec := range a.manager.Records() {
		state := string(rec.State)
		if row, ok := installed[rec.Descriptor.ID]; ok && !row.Enabled {
			state += " (disabled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.Descriptor.ID, rec.Descriptor.Version, state, capabilityKeys(rec.Descriptor))
	}
	w.Flush()

	if len(result.Failed) > 0 {
		fmt.Printf("\n%d plugin(s) failed validation:\n", len(result.Failed))
		for _, id := range result.Failed {
			fmt.Printf("  %s: %v\n", id, result.Errors[id])
		}
	}
	return nil
}

func runPluginInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	srcDir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	manifest, err := plugin.NewManifestLoader(a.logs.GetZerolog()).
		LoadManifest(filepath.Join(srcDir, plugin.ManifestFileName))
	if err != nil {
		return err
	}

	dst := filepath.Join(a.cfg.Plugins.WorkspaceDir, manifest.ID)
	if fsutil.Exists(dst) {
		return fmt.Errorf("plugin %s is already installed at %s", manifest.ID, dst)
	}
	if err := fsutil.CopyDir(srcDir, dst); err != nil {
		return err
	}

	if err := a.store.Put(store.InstalledPlugin{
		ID:         manifest.ID,
		Version:    manifest.Version,
		Author:     manifest.Author,
		SourcePath: dst,
		Enabled:    true,
	}); err != nil {
		return err
	}

	fmt.Printf("Installed %s %s to %s\n", manifest.ID, manifest.Version, dst)
	return nil
}

func runPluginEnable(cmd *cobra.Command, args []string) error {
	id := args[0]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	if _, err := a.manager.EnableAll(ctx); err != nil {
		return err
	}
	if err := requireKnown(a, id); err != nil {
		return err
	}

	if err := a.manager.Enable(ctx, id); err != nil {
		return err
	}
	if err := checkNotFailed(a, id); err != nil {
		return err
	}

	if err := a.store.SetEnabled(id, true); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	fmt.Printf("Plugin %s enabled\n", id)
	return nil
}

func runPluginDisable(cmd *cobra.Command, args []string) error {
	id := args[0]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	if _, err := a.manager.EnableAll(ctx); err != nil {
		return err
	}
	if err := requireKnown(a, id); err != nil {
		return err
	}

	if state, _ := a.manager.State(id); state == plugin.StateEnabled {
		if err := a.manager.Disable(ctx, id); err != nil {
			return err
		}
	}

	if err := a.store.SetEnabled(id, false); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	fmt.Printf("Plugin %s disabled\n", id)
	return nil
}

func runPluginRemove(cmd *cobra.Command, args []string) error {
	id := args[0]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	if _, err := a.manager.EnableAll(ctx); err != nil {
		return err
	}
	if err := requireKnown(a, id); err != nil {
		return err
	}

	var sourcePath string
	for _, rec := range a.manager.Records() {
		if rec.Descriptor.ID == id {
			sourcePath = rec.Source.Path
		}
	}

	if err := a.manager.Remove(ctx, id); err != nil {
		return err
	}

	if err := a.store.Delete(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// Only delete files we manage; extra and builtin dirs stay untouched
	if sourcePath != "" && strings.HasPrefix(sourcePath, a.cfg.Plugins.WorkspaceDir+string(filepath.Separator)) {
		if err := os.RemoveAll(sourcePath); err != nil {
			fmt.Printf("Warning: failed to delete %s: %v\n", sourcePath, err)
		}
	}

	fmt.Printf("Plugin %s removed\n", id)
	return nil
}

func runPluginReload(cmd *cobra.Command, args []string) error {
	id := args[0]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	if _, err := a.manager.EnableAll(ctx); err != nil {
		return err
	}
	if err := requireKnown(a, id); err != nil {
		return err
	}

	if err := a.manager.Reload(ctx, id); err != nil {
		return err
	}
	if err := checkNotFailed(a, id); err != nil {
		return err
	}

	fmt.Printf("Plugin %s reloaded\n", id)
	return nil
}

func requireKnown(a *app, id string) error {
	if _, ok := a.manager.State(id); !ok {
		return fmt.Errorf("unknown plugin: %s", id)
	}
	return nil
}

// checkNotFailed turns a Failed end state into a non-zero exit for
// single-target commands
func checkNotFailed(a *app, id string) error {
	if state, ok := a.manager.State(id); ok && state == plugin.StateFailed {
		if cause, ok := a.manager.Failures()[id]; ok {
			return fmt.Errorf("plugin %s failed: %w", id, cause)
		}
		return fmt.Errorf("plugin %s failed", id)
	}
	return nil
}

func capabilityKeys(desc plugin.Descriptor) string {
	keys := make([]string, 0, len(desc.Capabilities))
	for _, c := range desc.Capabilities {
		keys = append(keys, c.Key())
	}
	return strings.Join(keys, ",")
}
