package main

import (
	"github.com/spf13/cobra"

	"github.com/ahrav/finjudge/internal/report"
	"github.com/ahrav/finjudge/internal/worker"
)

func newReportCmd(g *globals) *cobra.Command {
	var runID, output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print aggregated statistics for a recorded run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := worker.Initialize(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			traces, err := res.Store.List(ctx, runID)
			if err != nil {
				return err
			}
			return writeJSONFile(cmd.OutOrStdout(), output, report.Build(runID, traces))
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Run to report on (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to this file instead of stdout")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
