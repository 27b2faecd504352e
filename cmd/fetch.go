package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fire-incidents/internal/pipeline"
)

var (
	fetchDate  string
	fetchType  string
	fetchLevel string
	fetchQuery string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and geocode incidents for a date and print them as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.FetchIncidents(ctx, fetchDate)
		if err != nil {
			return err
		}

		filter := pipeline.Filter{Type: fetchType, Level: fetchLevel, Search: fetchQuery}
		result.Incidents = filter.Apply(result.Incidents)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(result), "encode result")
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDate, "date", "", "incident date as M/D/YYYY (default today)")
	fetchCmd.Flags().StringVar(&fetchType, "type", "", "only incidents of this type")
	fetchCmd.Flags().StringVar(&fetchLevel, "level", "", "only incidents of this level")
	fetchCmd.Flags().StringVar(&fetchQuery, "q", "", "only incidents whose location contains this text")
	rootCmd.AddCommand(fetchCmd)
}
