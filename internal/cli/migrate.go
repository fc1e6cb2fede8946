package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khatabook/creditbook/internal/pkg/database"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// Migrations already ran while the app was wired; this reports where the schema is.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and print the schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := database.Version(cmd.Context(), ledger.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", version)
		return nil
	},
}
