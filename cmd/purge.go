package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPurgeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Deletes every persisted notice and resets the id sequence",
		Long: `Empties the notice table so the next run re-ingests the site from
scratch. Run history is kept. Requires --yes; there is no undo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to purge without --yes")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Store().Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge notices: %w", err)
			}
			a.Logger().Info("notices purged", zap.Int64("deleted", n))
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d notices\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
