package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/harun/stratus/internal/engine"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare desired configuration against recorded state",
	RunE:  runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	return runEngineOp(func(a *app, ctx context.Context) (*engine.Result, error) {
		return a.engine.Diff(ctx)
	})
}
