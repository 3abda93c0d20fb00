package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Creates the notice tables and indexes",
		Long: `Applies the schema statements to the configured database. Every
statement is idempotent, so initdb is safe to run against a database that
already has the tables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Store().InitSchema(cmd.Context()); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			a.Logger().Info("database schema applied")
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
