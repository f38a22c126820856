package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forkline/expansion-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "expansion-cli",
	Short: "LLM-driven expansion intelligence for restaurant chains",
	Long:  "Discovers candidate store locations for a target region, profiles their markets, scores them against a weighted rubric, and validates the survivors against the chain's existing footprint.",
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
