package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/classify-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "classify-cli",
	Short: "Hierarchical vendor classification pipeline",
	Long:  "Classifies vendor lists against a four-level industry taxonomy using batched LLM calls, with a web-search fallback for vendors the hierarchy cannot place.",
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
