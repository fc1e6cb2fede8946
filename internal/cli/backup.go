package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupShowCmd)
	backupCmd.AddCommand(backupRemoveCmd)
	backupCmd.AddCommand(backupPruneCmd)

	backupCmd.Flags().Bool("list", false, "List existing backups instead of taking one")
	backupPruneCmd.Flags().Int("keep", 7, "Number of newest backups to keep")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a JSON snapshot of the ledger to BACKUP_DRIVER storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := ledger.backups(cmd.Context())
		if err != nil {
			return err
		}

		if list, _ := cmd.Flags().GetBool("list"); list {
			keys, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		}

		key, err := svc.Run(cmd.Context())
		if err != nil {
			return err
		}
		ledger.pushMetrics(cmd.Context(), "creditbook_backup")
		fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", key)
		return nil
	},
}

var backupShowCmd = &cobra.Command{
	Use:   "show KEY",
	Short: "Summarise a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := ledger.backups(cmd.Context())
		if err != nil {
			return err
		}
		snap, err := svc.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Backup %s\n", args[0])
		fmt.Fprintf(out, "  Taken at:      %s\n", snap.TakenAt.UTC().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  Accounts:      %d\n", len(snap.Accounts))
		fmt.Fprintf(out, "  Credits:       %d\n", len(snap.Credits))
		fmt.Fprintf(out, "  Notifications: %d\n", len(snap.Notifications))
		if len(snap.Accounts) == 0 {
			return nil
		}

		fmt.Fprintln(out)
		tw := newTable(out, "ID", "NAME", "EMAIL", "LIMIT", "BALANCE", "BAD DEBT")
		for _, a := range snap.Accounts {
			row(tw, a.ID, a.Name, a.Email, a.CreditLimit.StringFixed(2), a.Balance.StringFixed(2), yesNo(a.BadDebt))
		}
		return tw.Flush()
	},
}

var backupRemoveCmd = &cobra.Command{
	Use:   "rm KEY",
	Short: "Delete one stored backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := ledger.backups(cmd.Context())
		if err != nil {
			return err
		}
		if err := svc.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest --keep backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		if keep < 0 {
			return fmt.Errorf("%w: --keep %d", errUsage, keep)
		}

		svc, err := ledger.backups(cmd.Context())
		if err != nil {
			return err
		}
		deleted, err := svc.Prune(cmd.Context(), keep)
		if err != nil {
			return err
		}
		for _, k := range deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", k)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d backup(s), kept up to %d\n", len(deleted), keep)
		return nil
	},
}
