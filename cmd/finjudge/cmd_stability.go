package main

import (
	"github.com/spf13/cobra"

	"github.com/ahrav/finjudge/internal/dataset"
	"github.com/ahrav/finjudge/internal/evaluation"
	"github.com/ahrav/finjudge/internal/worker"
)

type stabilityOptions struct {
	datasetPath string
	runID       string
	repeats     int
	threshold   float64
	concurrency int
	limit       int
	output      string
}

func newStabilityCmd(g *globals) *cobra.Command {
	opts := &stabilityOptions{}
	cmd := &cobra.Command{
		Use:   "stability",
		Short: "Evaluate a dataset repeatedly and report score spread per task",
		Long: `Evaluates every task --repeats times, each repetition recorded as its own
run "<run-id>-r<n>", and prints the per-task mean and standard deviation of
the final score. Tasks whose deviation reaches --threshold are listed as
unstable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tasks, err := dataset.Load(opts.datasetPath)
			if err != nil {
				return err
			}
			if opts.limit > 0 && opts.limit < len(tasks) {
				tasks = tasks[:opts.limit]
			}
			concurrency := g.cfg.Runner.Concurrency
			if opts.concurrency > 0 {
				concurrency = opts.concurrency
			}

			res, err := worker.Initialize(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer res.Close()
			eval, err := worker.InitializeEvaluator(g.cfg, res)
			if err != nil {
				return err
			}

			rep, err := evaluation.NewRunner(eval, concurrency).Stability(ctx, tasks, evaluation.StabilityOptions{
				RunID:       opts.runID,
				Repeats:     opts.repeats,
				Threshold:   opts.threshold,
				DatasetPath: opts.datasetPath,
			})
			if err != nil {
				return err
			}
			return writeJSONFile(cmd.OutOrStdout(), opts.output, rep)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.datasetPath, "dataset", "d", "", "Path to the JSONL task file (required)")
	f.StringVar(&opts.runID, "run-id", "", "Base run identifier (default: random UUID)")
	f.IntVar(&opts.repeats, "repeats", evaluation.DefaultStabilityRepeats, "Evaluations per task")
	f.Float64Var(&opts.threshold, "threshold", evaluation.DefaultStabilityThreshold, "Largest score std of a stable task")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Tasks evaluated at once (default from config)")
	f.IntVar(&opts.limit, "limit", 0, "Evaluate only the first N tasks")
	f.StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
