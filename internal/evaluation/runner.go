package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/finjudge/internal/audit"
	"github.com/ahrav/finjudge/internal/domain"
)

// ErrJudgesUnreachable is fatal: the preflight check failed and no task of the
// run was evaluated.
var ErrJudgesUnreachable = errors.New("judges unreachable")

// DefaultConcurrency is the number of tasks evaluated at once when unset.
const DefaultConcurrency = 4

// RunOptions describes one run.
type RunOptions struct {
	// RunID identifies the run. A random UUID is generated when empty;
	// otherwise it must pass domain.ValidateRunID.
	RunID string

	// DatasetPath is recorded in the manifest only.
	DatasetPath string
}

// TaskFailure records a task whose trace could not be produced.
type TaskFailure struct {
	TaskID string
	Err    error
}

// RunResult is the outcome of Runner.Run.
type RunResult struct {
	Manifest domain.RunManifest

	// Traces holds the recorded traces in dataset order. Failed tasks are absent.
	Traces []*domain.Trace

	Failures []TaskFailure
}

// Runner evaluates a dataset with bounded task concurrency.
type Runner struct {
	eval        *Evaluator
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// NewRunner creates a runner evaluating at most concurrency tasks at a time.
func NewRunner(eval *Evaluator, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Runner{
		eval:        eval,
		concurrency: concurrency,
		now:         time.Now,
		logger:      slog.Default().With("component", "runner"),
	}
}

// Run evaluates every task under one run id. The judges are pinged first;
// an unreachable judge boundary aborts the run with ErrJudgesUnreachable
// before any task starts. Individual task failures are collected in the
// result and do not stop the run. Tasks do not share state; the trace store is
// the only shared resource.
func (r *Runner) Run(ctx context.Context, tasks []domain.Task, opts RunOptions) (*RunResult, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	if err := Preflight(ctx, r.eval.Judges()); err != nil {
		return nil, err
	}
	manifest := NewManifest(runID, opts.DatasetPath, tasks,
		r.eval.Judges().Versions(), r.eval.ScoringConfig(), r.now().UTC())
	WriteManifest(ctx, r.eval.Store(), manifest, r.logger)
	r.logger.InfoContext(ctx, "run started",
		"run_id", runID, "tasks", len(tasks), "concurrency", r.concurrency)

	traces := make([]*domain.Trace, len(tasks))
	errs := make([]error, len(tasks))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			trace, err := r.eval.EvaluateTask(gctx, runID, task)
			if err != nil {
				errs[i] = err
				r.logger.ErrorContext(gctx, "task failed",
					"run_id", runID, "task_id", task.ID, "error", err)
				return nil
			}
			traces[i] = trace
			if n := completed.Add(1); n%50 == 0 {
				r.logger.InfoContext(gctx, "run progress",
					"run_id", runID, "completed", n, "total", len(tasks))
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &RunResult{}
	for i, t := range traces {
		if errs[i] != nil {
			res.Failures = append(res.Failures, TaskFailure{TaskID: tasks[i].ID, Err: errs[i]})
			continue
		}
		res.Traces = append(res.Traces, t)
	}
	manifest.Finish(r.now().UTC(), len(res.Traces), len(res.Failures))
	res.Manifest = manifest
	WriteManifest(context.WithoutCancel(ctx), r.eval.Store(), manifest, r.logger)

	r.logger.InfoContext(ctx, "run finished",
		"run_id", runID, "completed", manifest.CompletedTasks, "failed", manifest.FailedTasks)
	return res, ctx.Err()
}

// Preflight checks that the judge boundary is reachable. Failure is fatal to
// a run and is reported as ErrJudgesUnreachable.
func Preflight(ctx context.Context, judges Invoker) error {
	if err := judges.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrJudgesUnreachable, err)
	}
	return nil
}

// NewManifest starts the manifest of a run over tasks.
func NewManifest(
	runID, datasetPath string,
	tasks []domain.Task,
	versions map[domain.JudgeName]string,
	cfg domain.ScoringConfig,
	startedAt time.Time,
) domain.RunManifest {
	m := domain.RunManifest{
		RunID:         runID,
		StartedAt:     startedAt,
		DatasetPath:   datasetPath,
		JudgeVersions: versions,
		ScoringConfig: cfg,
		TotalTasks:    len(tasks),
	}
	for _, t := range tasks {
		if t.Track() == domain.SourceAdversarial {
			m.AdversarialTasks++
		} else {
			m.CanonicalTasks++
		}
	}
	return m
}

// WriteManifest writes m when store keeps manifests. Manifest write failures
// are logged; they never fail a run.
func WriteManifest(ctx context.Context, store audit.Store, m domain.RunManifest, logger *slog.Logger) {
	ms, ok := store.(audit.ManifestStore)
	if !ok {
		return
	}
	if err := ms.PutManifest(ctx, m); err != nil {
		logger.WarnContext(ctx, "manifest write failed", "run_id", m.RunID, "error", err)
	}
}
