package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khatabook/creditbook/internal/domain/notification"
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportOverdueCmd)
	reportCmd.AddCommand(reportBadDebtCmd)
	reportCmd.AddCommand(reportNotificationsCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Read-only views over the ledger",
}

var reportOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "Unpaid credit flagged overdue, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := ledger.reports().Overdue(cmd.Context())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No overdue credit")
			return nil
		}
		tw := newTable(cmd.OutOrStdout(), "ACCOUNT", "NAME", "EMAIL", "CREDIT", "AMOUNT", "DUE")
		for _, r := range rows {
			row(tw, r.AccountID, r.Name, r.Email, r.CreditID, r.Amount.StringFixed(2), r.DueDate)
		}
		return tw.Flush()
	},
}

var reportBadDebtCmd = &cobra.Command{
	Use:   "bad-debt",
	Short: "Accounts flagged as bad debt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := ledger.reports().BadDebt(cmd.Context())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No bad debt")
			return nil
		}
		tw := newTable(cmd.OutOrStdout(), "ACCOUNT", "NAME", "EMAIL", "BALANCE")
		for _, r := range rows {
			row(tw, r.AccountID, r.Name, r.Email, r.Balance.StringFixed(2))
		}
		return tw.Flush()
	},
}

var reportNotificationsCmd = &cobra.Command{
	Use:   "notifications [ACCOUNT_ID]",
	Short: "The notification log, for one account or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := notification.NewRepository(ledger.db)

		var (
			entries []notification.Entry
			err     error
		)
		if len(args) == 1 {
			id, perr := parseID(args[0], "account id")
			if perr != nil {
				return perr
			}
			entries, err = repo.ListByAccount(cmd.Context(), id)
		} else {
			entries, err = repo.ListAll(cmd.Context())
		}
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
			return nil
		}

		tw := newTable(cmd.OutOrStdout(), "ID", "ACCOUNT", "CREDIT", "KIND", "STATUS", "SENT", "REASON")
		for _, e := range entries {
			creditID := "-"
			if e.CreditID.Valid {
				creditID = fmt.Sprint(e.CreditID.Int64)
			}
			row(tw, e.ID, e.AccountID, creditID, e.Kind, e.Status, e.SentAt.UTC().Format("2006-01-02 15:04:05"), e.FailureReason.String)
		}
		return tw.Flush()
	},
}
