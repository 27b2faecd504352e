package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // source.timezone must resolve in images without zoneinfo

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fire-incidents/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fire-incidents",
	Short: "Seattle Fire Department realtime incident feed with geocoding",
	Long:  "Fetches the realtime 911 incident table, geocodes the leading incidents through a persistent cache, and serves the result as JSON for a map client.",
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
