package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "poster-research",
	Short: "Vintage poster research aggregation engine",
	Long:  "Aggregates visual and text search results for vintage poster listings, ranks them against a seller registry, and optionally parses prices and re-verifies matches with Claude.",
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
