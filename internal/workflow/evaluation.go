package workflow

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/evaluation"
	"github.com/ahrav/finjudge/internal/interpret"
	"github.com/ahrav/finjudge/internal/judge"
)

// DefaultTaskTimeout bounds each judge activity when the request sets none.
const DefaultTaskTimeout = 120 * time.Second

// ErrInvalidRequest indicates a workflow request that cannot be evaluated.
var ErrInvalidRequest = errors.New("invalid evaluation request")

// EvaluateTaskRequest is the input of EvaluateTaskWorkflow.
type EvaluateTaskRequest struct {
	RunID string      `json:"run_id"`
	Task  domain.Task `json:"task"`

	// TaskTimeout is the start-to-close timeout of every judge activity.
	TaskTimeout time.Duration `json:"task_timeout"`

	// JudgeVersions is recorded on calls synthesized for failed activities.
	JudgeVersions map[domain.JudgeName]string `json:"judge_versions,omitempty"`
}

// Validate checks the request.
func (r EvaluateTaskRequest) Validate() error {
	if err := domain.ValidateRunID(r.RunID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := r.Task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if r.TaskTimeout < 0 {
		return fmt.Errorf("%w: negative task_timeout", ErrInvalidRequest)
	}
	return nil
}

func (r EvaluateTaskRequest) version(name domain.JudgeName) string {
	if v := r.JudgeVersions[name]; v != "" {
		return v
	}
	return judge.DefaultVersion
}

// EvaluateTaskWorkflow evaluates one task and returns its recorded trace.
func EvaluateTaskWorkflow(ctx workflow.Context, req EvaluateTaskRequest) (*domain.Trace, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "evaluate_task.v", workflow.DefaultVersion, currentVersion)

	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"invalid evaluation request",
			"Validation",
			err,
		)
	}
	logger := workflow.GetLogger(ctx)

	timeout := req.TaskTimeout
	if timeout == 0 {
		timeout = DefaultTaskTimeout
	}
	judgeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var a *evaluation.Activities
	in := req.Task.JudgeInput()
	exact := interpret.ExactMatch(req.Task.GoldAnswer, req.Task.ModelAnswer)

	names := domain.Judges()
	futures := make([]workflow.Future, len(names))
	for i, name := range names {
		futures[i] = workflow.ExecuteActivity(judgeCtx, a.InvokeJudge, evaluation.JudgeActivityInput{
			RunID:  req.RunID,
			TaskID: req.Task.ID,
			Judge:  name,
			Input:  in,
			Bypass: exact && name.NumericFamily(),
		})
	}

	calls := make([]domain.JudgeCall, len(names))
	for i, name := range names {
		var call domain.JudgeCall
		if err := futures[i].Get(ctx, &call); err != nil {
			var appErr *temporal.ApplicationError
			if errors.As(err, &appErr) && appErr.NonRetryable() {
				return nil, err
			}
			logger.Warn("judge activity failed, degrading", "judge", name, "error", err)
			call = judge.Degraded(name, req.version(name), in, err, 1)
			call.StartedAt = workflow.Now(ctx).UTC()
		}
		calls[i] = call
	}

	recordCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})
	var trace domain.Trace
	err := workflow.ExecuteActivity(recordCtx, a.ScoreAndRecord, evaluation.RecordActivityInput{
		RunID: req.RunID,
		Task:  req.Task,
		Calls: calls,
	}).Get(ctx, &trace)
	if err != nil {
		return nil, err
	}
	return &trace, nil
}
