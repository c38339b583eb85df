package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/roteiro-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "roteiro-cli",
	Short: "Customer address geocoding and snapshot reconciliation",
	Long:  "Geocodes customer spreadsheets with tiered fallback queries and resumable checkpoints, reconciles network and region columns between snapshots, and loads the result into Postgres.",
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
