package evaluation

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/finjudge/internal/audit"
	"github.com/ahrav/finjudge/internal/domain"
	pkgactivity "github.com/ahrav/finjudge/pkg/activity"
	"github.com/ahrav/finjudge/pkg/events"
)

const eventSource = "evaluation-activity"

// JudgeActivityInput is the input of the InvokeJudge activity.
type JudgeActivityInput struct {
	RunID  string            `json:"run_id"`
	TaskID string            `json:"task_id"`
	Judge  domain.JudgeName  `json:"judge"`
	Input  domain.JudgeInput `json:"input"`

	// Bypass short-circuits the numeric judge on an exact textual match.
	Bypass bool `json:"bypass"`
}

// RecordActivityInput is the input of the ScoreAndRecord activity.
type RecordActivityInput struct {
	RunID string             `json:"run_id"`
	Task  domain.Task        `json:"task"`
	Calls []domain.JudgeCall `json:"calls"`
}

// TaskScoredEvent is the payload of an evaluation.task_scored event.
type TaskScoredEvent struct {
	RunID         string                   `json:"run_id"`
	TaskID        string                   `json:"task_id"`
	FinalScore    float64                  `json:"final_score"`
	Flags         []domain.ConsistencyFlag `json:"flags"`
	ErrorTaxonomy []domain.TaxonomyEntry   `json:"error_taxonomy"`
}

// JudgeDegradedEvent is the payload of an evaluation.judge_degraded event.
type JudgeDegradedEvent struct {
	RunID    string           `json:"run_id"`
	TaskID   string           `json:"task_id"`
	Judge    domain.JudgeName `json:"judge"`
	Attempts int              `json:"attempts"`
	Error    string           `json:"error"`
}

// Activities exposes the per-task pipeline as Temporal activities. Judge calls
// and scoring are separate activities so that a workflow can fan the judges
// out and still degrade an activity that fails outright.
type Activities struct {
	pkgactivity.BaseActivities
	eval *Evaluator
}

// NewActivities creates activities backed by eval.
func NewActivities(base pkgactivity.BaseActivities, eval *Evaluator) *Activities {
	return &Activities{BaseActivities: base, eval: eval}
}

// InvokeJudge makes one judge call. Judge failures are data in the returned
// call; only an unknown judge name fails the activity, and never retryably.
func (a *Activities) InvokeJudge(ctx context.Context, in JudgeActivityInput) (domain.JudgeCall, error) {
	if _, err := domain.ParseJudgeName(string(in.Judge)); err != nil {
		return domain.JudgeCall{}, nonRetryable("InvokeJudge", err, "invalid judge")
	}

	wfCtx := a.GetWorkflowContext(ctx)
	pkgactivity.SafeLog(ctx, "invoking judge",
		"workflow_id", wfCtx.WorkflowID,
		"run_id", in.RunID,
		"task_id", in.TaskID,
		"judge", in.Judge,
		"bypass", in.Bypass)

	input := a.eval.ScoringConfig().InputFor(in.Judge, in.Input)
	if in.Bypass && in.Judge.NumericFamily() {
		return a.eval.judges.Bypass(in.Judge, input), nil
	}

	pkgactivity.RecordHeartbeat(ctx, string(in.Judge))
	call := a.eval.judges.Invoke(ctx, in.Judge, input)
	if call.Degraded {
		msg := ""
		if call.Error != nil {
			msg = *call.Error
		}
		a.emit(ctx, events.TypeJudgeDegraded,
			in.RunID+":"+in.TaskID+":"+string(in.Judge)+":degraded",
			JudgeDegradedEvent{
				RunID: in.RunID, TaskID: in.TaskID, Judge: in.Judge,
				Attempts: call.Attempts, Error: msg,
			})
	}
	return call, nil
}

// ScoreAndRecord interprets, scores and records the calls of one task. It is
// idempotent: if a previous attempt already recorded the trace, the stored
// trace is returned.
func (a *Activities) ScoreAndRecord(ctx context.Context, in RecordActivityInput) (*domain.Trace, error) {
	if err := in.Task.Validate(); err != nil {
		return nil, nonRetryable("ScoreAndRecord", err, "invalid task")
	}

	trace, err := a.eval.Finish(ctx, in.RunID, in.Task, in.Calls)
	switch {
	case errors.Is(err, audit.ErrTraceExists):
		existing, getErr := a.eval.Store().Get(ctx, in.RunID, in.Task.ID)
		if getErr != nil {
			return nil, getErr
		}
		return existing, nil
	case errors.Is(err, domain.ErrInvalidTrace),
		errors.Is(err, domain.ErrInvalidJudgeOutput),
		errors.Is(err, domain.ErrConfidenceInvariant),
		errors.Is(err, domain.ErrUnknownJudge):
		return nil, nonRetryable("ScoreAndRecord", err, "trace rejected")
	case err != nil:
		return nil, err
	}

	a.emit(ctx, events.TypeTaskScored, in.RunID+":"+in.Task.ID+":scored", TaskScoredEvent{
		RunID:         in.RunID,
		TaskID:        in.Task.ID,
		FinalScore:    trace.Score.FinalScore,
		Flags:         trace.Score.Flags,
		ErrorTaxonomy: trace.ErrorTaxonomy,
	})
	return trace, nil
}

func (a *Activities) emit(ctx context.Context, eventType, key string, payload any) {
	env, err := events.NewEnvelope(eventType, eventSource, key, payload)
	if err != nil {
		pkgactivity.SafeLogError(ctx, "event build failed", "event_type", eventType, "error", err)
		return
	}
	wfCtx := a.GetWorkflowContext(ctx)
	env.WorkflowID = wfCtx.WorkflowID
	env.RunID = wfCtx.RunID
	a.EmitEventSafe(ctx, env, eventType)
}

func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}
