package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/finjudge/internal/dataset"
	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/evaluation"
	"github.com/ahrav/finjudge/internal/report"
	"github.com/ahrav/finjudge/internal/worker"
	"github.com/ahrav/finjudge/internal/workflow"
)

type runOptions struct {
	datasetPath string
	runID       string
	concurrency int
	limit       int
	output      string
	temporal    bool
}

func newRunCmd(g *globals) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every task of a JSONL dataset",
		Long: `Loads the dataset, checks that the judges are reachable, evaluates every
task and prints the run report. With --temporal each task is submitted as an
EvaluateTaskWorkflow to the configured Temporal namespace instead of being
evaluated in-process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, g, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.datasetPath, "dataset", "d", "", "Path to the JSONL task file (required)")
	f.StringVar(&opts.runID, "run-id", "", "Run identifier (default: random UUID)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Tasks evaluated at once (default from config)")
	f.IntVar(&opts.limit, "limit", 0, "Evaluate only the first N tasks")
	f.StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	f.BoolVar(&opts.temporal, "temporal", false, "Run each task as a Temporal workflow")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func runEvaluate(cmd *cobra.Command, g *globals, opts *runOptions) error {
	ctx := cmd.Context()
	cfg := g.cfg

	tasks, err := dataset.Load(opts.datasetPath)
	if err != nil {
		return err
	}
	if opts.limit > 0 && opts.limit < len(tasks) {
		tasks = tasks[:opts.limit]
	}
	concurrency := cfg.Runner.Concurrency
	if opts.concurrency > 0 {
		concurrency = opts.concurrency
	}
	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}
	if err := domain.ValidateRunID(opts.runID); err != nil {
		return err
	}

	res, err := worker.Initialize(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	var traces []*domain.Trace
	if opts.temporal {
		traces, err = runOnTemporal(ctx, g, res, opts, tasks, concurrency)
	} else {
		traces, err = runInProcess(ctx, g, res, opts, tasks, concurrency)
	}
	if err != nil {
		return err
	}
	return writeJSONFile(cmd.OutOrStdout(), opts.output, report.Build(opts.runID, traces))
}

func runInProcess(ctx context.Context, g *globals, res *worker.Resources, opts *runOptions, tasks []domain.Task, concurrency int) ([]*domain.Trace, error) {
	eval, err := worker.InitializeEvaluator(g.cfg, res)
	if err != nil {
		return nil, err
	}
	result, err := evaluation.NewRunner(eval, concurrency).Run(ctx, tasks, evaluation.RunOptions{
		RunID:       opts.runID,
		DatasetPath: opts.datasetPath,
	})
	if err != nil {
		return nil, err
	}
	for _, f := range result.Failures {
		slog.Warn("task not recorded", "task_id", f.TaskID, "error", f.Err)
	}
	return result.Traces, nil
}

// workflowStarter is the part of the Temporal client used to submit tasks.
type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
}

// runOnTemporal checks the judges before dialing Temporal, so an unreachable
// judge boundary fails the run without starting a single workflow.
func runOnTemporal(
	ctx context.Context,
	g *globals,
	res *worker.Resources,
	opts *runOptions,
	tasks []domain.Task,
	concurrency int,
) ([]*domain.Trace, error) {
	if err := evaluation.Preflight(ctx, res.Judges); err != nil {
		return nil, err
	}
	c, err := worker.DialTemporal(g.cfg.Temporal)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return submitWorkflows(ctx, c, g, res, opts, tasks, concurrency)
}

// submitWorkflows runs one EvaluateTaskWorkflow per task and waits for all of
// them. A failed workflow is logged and counted in the manifest; only a
// submission error aborts the run.
func submitWorkflows(
	ctx context.Context,
	starter workflowStarter,
	g *globals,
	res *worker.Resources,
	opts *runOptions,
	tasks []domain.Task,
	concurrency int,
) ([]*domain.Trace, error) {
	runID := opts.runID
	versions := res.Judges.Versions()
	manifest := evaluation.NewManifest(runID, opts.datasetPath, tasks, versions, g.cfg.Scoring, time.Now().UTC())
	evaluation.WriteManifest(ctx, res.Store, manifest, slog.Default())

	traces := make([]*domain.Trace, len(tasks))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, task := range tasks {
		eg.Go(func() error {
			run, err := starter.ExecuteWorkflow(egCtx, client.StartWorkflowOptions{
				ID:        "evaluate-" + runID + "-" + task.ID,
				TaskQueue: g.cfg.Temporal.TaskQueue,
			}, workflow.EvaluateTaskWorkflow, workflow.EvaluateTaskRequest{
				RunID:         runID,
				Task:          task,
				TaskTimeout:   g.cfg.Runner.TaskTimeout,
				JudgeVersions: versions,
			})
			if err != nil {
				return fmt.Errorf("start workflow for task %s: %w", task.ID, err)
			}
			var trace domain.Trace
			if err := run.Get(egCtx, &trace); err != nil {
				slog.Warn("task workflow failed", "task_id", task.ID, "error", err)
				return nil
			}
			traces[i] = &trace
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]*domain.Trace, 0, len(traces))
	for _, t := range traces {
		if t != nil {
			out = append(out, t)
		}
	}
	manifest.Finish(time.Now().UTC(), len(out), len(tasks)-len(out))
	evaluation.WriteManifest(context.WithoutCancel(ctx), res.Store, manifest, slog.Default())
	return out, nil
}
