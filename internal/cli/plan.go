package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/harun/stratus/internal/engine"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the changes a deploy would make",
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	return runEngineOp(func(a *app, ctx context.Context) (*engine.Result, error) {
		return a.engine.Plan(ctx)
	})
}
