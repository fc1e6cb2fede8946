// Package cli is the creditbook command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khatabook/creditbook/internal/config"
	"github.com/khatabook/creditbook/internal/pkg/logger"
)

// ledger is the wired application for the running command
var ledger *app

var rootCmd = &cobra.Command{
	Use:   "creditbook",
	Short: "Customer credit ledger with reminder escalation",
	Long: `creditbook tracks credit extended to customers against a limit, and escalates
unpaid credit through reminders, overdue and bad debt, emailing the customer at each step.

Configuration comes from the environment (or a .env file): DATABASE_URL selects a
SQLite file or a postgres:// database, MAIL_DRIVER selects smtp, sendgrid or log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := logger.Init(logger.Config{
			Level:       cfg.LogLevel,
			Environment: cfg.Env,
			LogFile:     cfg.LogFile,
		}); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		ledger = a
		return nil
	},
}

// Execute runs the command line with ctx; cancelling ctx stops long-running commands.
// Cobra skips post-run hooks when a command fails, so the app is closed here.
func Execute(ctx context.Context) error {
	defer func() {
		if ledger != nil {
			ledger.Close()
			ledger = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}
