package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/stratus/internal/engine"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Apply the workspace configuration",
	Long:  `Apply the workspace configuration to the target environment using the enabled provider plugins.`,
	RunE:  runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	return runEngineOp(func(a *app, ctx context.Context) (*engine.Result, error) {
		res, err := a.engine.Deploy(ctx)
		if err != nil {
			return nil, err
		}
		// State changed, take a rotation-managed backup
		if backupPath, err := a.backups.Create(); err != nil {
			fmt.Printf("Warning: state backup failed: %v\n", err)
		} else if backupPath != "" {
			fmt.Printf("State backed up to %s\n", backupPath)
		}
		return res, nil
	})
}
