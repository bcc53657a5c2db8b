package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/stratus/internal/backup"
	"github.com/harun/stratus/pkg/plugin"
)

var pluginWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run with live plugin reload",
	Long: `Enable all plugins and keep running, re-enabling plugins whose
source directories change. Also runs the backup schedule if one is
configured. Stops on interrupt.`,
	RunE: runPluginWatch,
}

func init() {
	pluginCmd.AddCommand(pluginWatchCmd)
}

func runPluginWatch(cmd *cobra.Command, args []string) error {
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
	fmt.Printf("%d plugin(s) enabled, %d failed\n", len(result.Enabled), len(result.Failed))

	watcher := plugin.NewWatcher(a.logs.GetZerolog(), func(dir string) {
		if _, err := a.enablePlugins(ctx); err != nil {
			fmt.Printf("Reload after change in %s failed: %v\n", dir, err)
			return
		}
		fmt.Printf("Plugins reloaded after change in %s\n", dir)
	})

	dirs := append([]string{a.cfg.Plugins.BuiltinDir, a.cfg.Plugins.WorkspaceDir}, a.cfg.Plugins.ExtraDirs...)
	if err := watcher.Start(dirs...); err != nil {
		return err
	}
	defer watcher.Stop()

	scheduler := backup.NewScheduler(a.backups)
	if err := scheduler.Start(a.cfg.Backup.Schedule); err != nil {
		return err
	}
	defer scheduler.Stop()

	fmt.Println("Watching for plugin changes, press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("Stopping")
	return nil
}
