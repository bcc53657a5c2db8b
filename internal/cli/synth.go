package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/harun/stratus/internal/engine"
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Render the workspace configuration to templates",
	RunE:  runSynth,
}

func init() {
	rootCmd.AddCommand(synthCmd)
}

func runSynth(cmd *cobra.Command, args []string) error {
	return runEngineOp(func(a *app, ctx context.Context) (*engine.Result, error) {
		return a.engine.Synth(ctx)
	})
}
