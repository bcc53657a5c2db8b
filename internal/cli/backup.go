package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage state backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the state file now",
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List existing backups",
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-path>",
	Short: "Restore the state file from a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	path, err := a.backups.Create()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println("No state file to back up")
		return nil
	}
	fmt.Printf("Backup written to %s\n", path)
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	backups, err := a.backups.List()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSIZE\tPATH")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%d\t%s\n", b.CreatedAt.Format(time.RFC3339), b.Size, b.Path)
	}
	return w.Flush()
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.backups.Restore(args[0]); err != nil {
		return err
	}
	fmt.Printf("State restored from %s\n", args[0])
	return nil
}
