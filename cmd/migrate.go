package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fire-incidents/internal/geocache"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the geocode cache table or index for the configured driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := geocache.OpenMigrated(cmd.Context(), cfg.Cache)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("migrations complete", zap.String("driver", cfg.Cache.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
