package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(creditCmd)
	creditCmd.AddCommand(creditRequestCmd)
	creditCmd.AddCommand(creditPayCmd)
	creditCmd.AddCommand(creditListCmd)
}

var creditCmd = &cobra.Command{
	Use:   "credit",
	Short: "Issue, pay and list credit",
}

var creditRequestCmd = &cobra.Command{
	Use:   "request ACCOUNT_ID AMOUNT",
	Short: "Issue credit dated today against the account's limit",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreditRequest,
}

func runCreditRequest(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "account id")
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("%w: amount %q", errUsage, args[1])
	}

	creditID, err := ledger.accounts.RequestCredit(cmd.Context(), id, amount)
	if err != nil {
		return err
	}
	ledger.pushMetrics(cmd.Context(), "creditbook_credit")

	a, err := ledger.accounts.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Issued credit %d for %s; balance %s of %s\n",
		creditID, amount.StringFixed(2), a.Balance.StringFixed(2), a.CreditLimit.StringFixed(2))
	return nil
}

var creditPayCmd = &cobra.Command{
	Use:   "pay ACCOUNT_ID CREDIT_ID",
	Short: "Mark a credit as paid",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreditPay,
}

func runCreditPay(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "account id")
	if err != nil {
		return err
	}
	creditID, err := parseID(args[1], "credit id")
	if err != nil {
		return err
	}

	if err := ledger.accounts.PayCredit(cmd.Context(), id, creditID); err != nil {
		return err
	}
	ledger.pushMetrics(cmd.Context(), "creditbook_credit")

	a, err := ledger.accounts.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Paid credit %d; balance %s\n", creditID, a.Balance.StringFixed(2))
	return nil
}

var creditListCmd = &cobra.Command{
	Use:   "list ACCOUNT_ID",
	Short: "List an account's credits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "account id")
		if err != nil {
			return err
		}
		return printCredits(cmd, id)
	},
}

func printCredits(cmd *cobra.Command, accountID int64) error {
	credits, err := ledger.accounts.Credits(cmd.Context(), accountID)
	if err != nil {
		return err
	}
	if len(credits) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No credits")
		return nil
	}

	tw := newTable(cmd.OutOrStdout(), "CREDIT", "AMOUNT", "ISSUED", "DUE", "PAID", "OVERDUE")
	for _, c := range credits {
		row(tw, c.ID, c.Amount.StringFixed(2), c.IssueDate, c.DueDate, yesNo(c.Paid), yesNo(c.Overdue))
	}
	return tw.Flush()
}
