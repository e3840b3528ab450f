package worker

import (
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/finjudge/internal/evaluation"
	"github.com/ahrav/finjudge/internal/workflow"
	"github.com/ahrav/finjudge/pkg/activity"
	"github.com/ahrav/finjudge/pkg/events"
)

// Registrar is the subset of a Temporal worker used for registration.
type Registrar interface {
	RegisterWorkflow(w any)
	RegisterActivity(a any)
}

var _ Registrar = sdkworker.Worker(nil)

// RegisterAll registers the evaluation workflow and its activities. It must be
// called once, before the worker starts.
func RegisterAll(w Registrar, eval *evaluation.Evaluator, sink events.EventSink) {
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	acts := evaluation.NewActivities(activity.NewBaseActivities(sink), eval)

	w.RegisterWorkflow(workflow.EvaluateTaskWorkflow)
	w.RegisterActivity(acts.InvokeJudge)
	w.RegisterActivity(acts.ScoreAndRecord)
}
