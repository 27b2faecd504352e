package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Resolve one incident location through the geocode cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		c, ok := env.Resolver.Resolve(ctx, args[0])
		if !ok {
			return eris.Errorf("no coordinates for %q", args[0])
		}

		u := env.Meter.Snapshot(env.Calculator)
		source := "provider"
		if u.CacheHits > 0 {
			source = "cache"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.6f,%.6f (%s)\n", c.Latitude, c.Longitude, source)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
