package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/harun/stratus/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the workspace configuration for errors",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	return runEngineOp(func(a *app, ctx context.Context) (*engine.Result, error) {
		return a.engine.Validate(ctx)
	})
}
