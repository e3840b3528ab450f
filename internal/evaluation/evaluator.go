// Package evaluation runs the per-task judge pipeline and schedules whole runs.
//
// Per task the three judges fan out in parallel and join before scoring:
//
//	task -> judges (parallel) -> interpret -> analyze + score -> record
//
// A task deadline cancels only that task's judge calls; cancelled calls degrade
// into unrecovered judge errors and the task is still scored and recorded.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/finjudge/internal/audit"
	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/interpret"
	"github.com/ahrav/finjudge/internal/judge"
	"github.com/ahrav/finjudge/internal/scoring"
)

// DefaultTaskTimeout bounds one task when no timeout is configured.
const DefaultTaskTimeout = 120 * time.Second

// Invoker is the judge client surface the evaluator needs.
type Invoker interface {
	Invoke(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) domain.JudgeCall
	Bypass(name domain.JudgeName, in domain.JudgeInput) domain.JudgeCall
	Versions() map[domain.JudgeName]string
	Ping(ctx context.Context) error
}

var _ Invoker = (*judge.Client)(nil)

// Evaluator evaluates single tasks end to end.
type Evaluator struct {
	judges      Invoker
	scorer      *scoring.Scorer
	recorder    *audit.Recorder
	taskTimeout time.Duration
	logger      *slog.Logger
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithTaskTimeout sets the per-task deadline.
func WithTaskTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.taskTimeout = d
		}
	}
}

// WithEvaluatorLogger sets the evaluator logger.
func WithEvaluatorLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator wires a judge client, scorer and trace store. Traces snapshot
// the scorer's configuration.
func NewEvaluator(judges Invoker, scorer *scoring.Scorer, store audit.Store, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		judges:      judges,
		scorer:      scorer,
		recorder:    audit.NewRecorder(store, scorer.Config()),
		taskTimeout: DefaultTaskTimeout,
		logger:      slog.Default().With("component", "evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the trace store the evaluator records into.
func (e *Evaluator) Store() audit.Store { return e.recorder.Store() }

// Judges returns the judge client.
func (e *Evaluator) Judges() Invoker { return e.judges }

// ScoringConfig returns the configuration snapshotted into traces.
func (e *Evaluator) ScoringConfig() domain.ScoringConfig { return e.scorer.Config() }

// EvaluateTask runs the full pipeline for task and records its trace under
// runID. Judge failures never surface as errors; only an invalid task or a
// failed trace write does.
func (e *Evaluator) EvaluateTask(ctx context.Context, runID string, task domain.Task) (*domain.Trace, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	calls := e.CallJudges(ctx, task)
	return e.Finish(ctx, runID, task, calls)
}

// Finish interprets the judge calls of task, scores them and records the
// trace. The caller's context is used for the write, so a task that hit its
// own deadline is still recorded.
func (e *Evaluator) Finish(ctx context.Context, runID string, task domain.Task, calls []domain.JudgeCall) (*domain.Trace, error) {
	outs, err := interpret.InterpretAll(calls, task.JudgeInput())
	if err != nil {
		return nil, fmt.Errorf("evaluate task %s: %w", task.ID, err)
	}
	score := e.scorer.Score(task, outs)

	trace, err := e.recorder.Record(ctx, runID, task, calls, outs, score)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "task evaluated",
		"run_id", runID, "task_id", task.ID,
		"final_score", score.FinalScore, "flags", score.Flags)
	return trace, nil
}

// CallJudges invokes all three judges for task in parallel under the task
// deadline and returns their calls in judge order. The numeric judge is
// bypassed when the answers match exactly after normalization.
func (e *Evaluator) CallJudges(ctx context.Context, task domain.Task) []domain.JudgeCall {
	taskCtx, cancel := context.WithTimeout(ctx, e.taskTimeout)
	defer cancel()

	base := task.JudgeInput()
	cfg := e.scorer.Config()
	exact := interpret.ExactMatch(task.GoldAnswer, task.ModelAnswer)
	names := domain.Judges()
	calls := make([]domain.JudgeCall, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			in := cfg.InputFor(name, base)
			if exact && name.NumericFamily() {
				calls[i] = e.judges.Bypass(name, in)
				return nil
			}
			calls[i] = e.judges.Invoke(taskCtx, name, in)
			return nil
		})
	}
	_ = g.Wait()
	return calls
}
