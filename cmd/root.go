package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "totalloss",
	Short: "Total-loss evaluation and salvage workflow",
	Long:  "Decides whether a damaged vehicle is an economic total loss, extracts salvage offers from partner replies, sends salvage requests and keeps an audit trail of decisions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
