package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpiredValuations(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver), zap.Int("expired_valuations_removed", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Store (%s) is up to date; removed %d expired valuation(s)\n", cfg.Store.Driver, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
