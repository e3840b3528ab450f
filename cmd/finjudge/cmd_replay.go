package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/scoring"
	"github.com/ahrav/finjudge/internal/worker"
)

// errReplayFailed is returned when at least one trace does not reproduce.
var errReplayFailed = errors.New("replay found mismatching traces")

func newReplayCmd(g *globals) *cobra.Command {
	var runID, taskID string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Recompute stored scores from their traces and report mismatches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := worker.Initialize(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			var traces []*domain.Trace
			if taskID != "" {
				t, err := res.Store.Get(ctx, runID, taskID)
				if err != nil {
					return err
				}
				traces = []*domain.Trace{t}
			} else if traces, err = res.Store.List(ctx, runID); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var mismatches int
			for _, t := range traces {
				if err := scoring.Verify(t); err != nil {
					mismatches++
					fmt.Fprintf(out, "MISMATCH %s: %v\n", t.TaskID, err)
					continue
				}
				fmt.Fprintf(out, "ok       %s final_score=%.4f\n", t.TaskID, t.Score.FinalScore)
			}
			fmt.Fprintf(out, "%d traces replayed, %d mismatches\n", len(traces), mismatches)
			if mismatches > 0 {
				return errReplayFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Run to replay (required)")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Replay a single task")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
