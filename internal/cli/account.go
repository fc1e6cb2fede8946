package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/khatabook/creditbook/internal/domain/account"
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountRegisterCmd)
	accountCmd.AddCommand(accountUpdateCmd)
	accountCmd.AddCommand(accountDeleteCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountListCmd)

	accountRegisterCmd.Flags().String("name", "", "Customer name")
	accountRegisterCmd.Flags().String("email", "", "Customer email (unique, case-insensitive)")
	accountRegisterCmd.Flags().String("limit", "", "Credit limit, e.g. 1000 or 2500.50")
	_ = accountRegisterCmd.MarkFlagRequired("name")
	_ = accountRegisterCmd.MarkFlagRequired("email")
	_ = accountRegisterCmd.MarkFlagRequired("limit")

	accountUpdateCmd.Flags().String("name", "", "New name")
	accountUpdateCmd.Flags().String("email", "", "New email")
	accountUpdateCmd.Flags().String("limit", "", "New credit limit (not below the current balance)")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Register and manage customer accounts",
}

var accountRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account",
	Args:  cobra.NoArgs,
	RunE:  runAccountRegister,
}

func runAccountRegister(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	limitStr, _ := cmd.Flags().GetString("limit")

	limit, err := decimal.NewFromString(limitStr)
	if err != nil {
		return fmt.Errorf("%w: limit %q", errUsage, limitStr)
	}

	a, err := ledger.accounts.Register(cmd.Context(), account.RegisterInput{
		Name:        name,
		Email:       email,
		CreditLimit: limit,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Registered account %d (%s)\n", a.ID, a.Email)
	return nil
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update ACCOUNT_ID",
	Short: "Update name, email or credit limit; omitted flags are unchanged",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountUpdate,
}

func runAccountUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "account id")
	if err != nil {
		return err
	}

	var in account.UpdateInput
	if cmd.Flags().Changed("name") {
		name, _ := cmd.Flags().GetString("name")
		in.Name = &name
	}
	if cmd.Flags().Changed("email") {
		email, _ := cmd.Flags().GetString("email")
		in.Email = &email
	}
	if cmd.Flags().Changed("limit") {
		limitStr, _ := cmd.Flags().GetString("limit")
		limit, err := decimal.NewFromString(limitStr)
		if err != nil {
			return fmt.Errorf("%w: limit %q", errUsage, limitStr)
		}
		in.CreditLimit = &limit
	}
	if in.IsEmpty() {
		return fmt.Errorf("%w: nothing to update, pass --name, --email or --limit", errUsage)
	}

	a, err := ledger.accounts.Update(cmd.Context(), id, in)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated account %d: %s <%s>, limit %s\n", a.ID, a.Name, a.Email, a.CreditLimit.StringFixed(2))
	return nil
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete ACCOUNT_ID",
	Short: "Delete an account with all its credits and notification history",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountDelete,
}

func runAccountDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "account id")
	if err != nil {
		return err
	}
	if err := ledger.accounts.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted account %d\n", id)
	return nil
}

var accountShowCmd = &cobra.Command{
	Use:   "show ACCOUNT_ID|EMAIL",
	Short: "Show an account and its credits",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		a   *account.Account
		err error
	)
	if strings.Contains(args[0], "@") {
		a, err = ledger.accounts.GetByEmail(ctx, args[0])
	} else {
		var id int64
		if id, err = parseID(args[0], "account id"); err != nil {
			return err
		}
		a, err = ledger.accounts.Get(ctx, id)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account %d\n", a.ID)
	fmt.Fprintf(out, "  Name:      %s\n", a.Name)
	fmt.Fprintf(out, "  Email:     %s\n", a.Email)
	fmt.Fprintf(out, "  Limit:     %s\n", a.CreditLimit.StringFixed(2))
	fmt.Fprintf(out, "  Balance:   %s\n", a.Balance.StringFixed(2))
	fmt.Fprintf(out, "  Available: %s\n", a.Available().StringFixed(2))
	fmt.Fprintf(out, "  Bad debt:  %s\n\n", yesNo(a.BadDebt))

	return printCredits(cmd, a.ID)
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

func runAccountList(cmd *cobra.Command, args []string) error {
	accounts, err := ledger.accounts.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No accounts")
		return nil
	}

	tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "EMAIL", "LIMIT", "BALANCE", "BAD DEBT")
	for _, a := range accounts {
		row(tw, a.ID, a.Name, a.Email, a.CreditLimit.StringFixed(2), a.Balance.StringFixed(2), yesNo(a.BadDebt))
	}
	return tw.Flush()
}
