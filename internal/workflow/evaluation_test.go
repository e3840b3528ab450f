package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/finjudge/internal/audit"
	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/evaluation"
	"github.com/ahrav/finjudge/internal/judge"
	"github.com/ahrav/finjudge/internal/scoring"
	pkgactivity "github.com/ahrav/finjudge/pkg/activity"
	"github.com/ahrav/finjudge/pkg/events"
)

var judgeResponses = map[domain.JudgeName]string{
	domain.JudgeSemantic:      `{"score":0.95,"confidence":0.9}`,
	domain.JudgeNumeric:       `{"score":1,"confidence":0.9,"failure_reason":"none"}`,
	domain.JudgeContradiction: `{"score":1,"confidence":0.9,"violated":false}`,
}

type fixture struct {
	acts         *evaluation.Activities
	store        *audit.MemoryStore
	numericCalls *atomic.Int32
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	var numericCalls atomic.Int32
	transport := judge.TransportFunc(func(_ context.Context, name domain.JudgeName, _ domain.JudgeInput) ([]byte, error) {
		if name == domain.JudgeNumeric {
			numericCalls.Add(1)
		}
		return []byte(judgeResponses[name]), nil
	})
	scorer, err := scoring.NewScorer(domain.DefaultScoringConfig())
	require.NoError(t, err)
	store := audit.NewMemoryStore()
	eval := evaluation.NewEvaluator(judge.NewClient(transport), scorer, store)
	acts := evaluation.NewActivities(pkgactivity.NewBaseActivities(events.NewNoOpEventSink()), eval)
	return fixture{acts: acts, store: store, numericCalls: &numericCalls}
}

func (f fixture) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(f.acts.InvokeJudge)
	env.RegisterActivity(f.acts.ScoreAndRecord)
}

func validRequest() EvaluateTaskRequest {
	return EvaluateTaskRequest{
		RunID: "run-1",
		Task: domain.Task{
			ID:          "t1",
			Question:    "What was FY23 revenue?",
			GoldAnswer:  "$5.2B",
			ModelAnswer: "Revenue was $5.2 billion",
		},
		TaskTimeout: 30 * time.Second,
	}
}

func TestEvaluateTaskWorkflow(t *testing.T) {
	var suite testsuite.WorkflowTestSuite

	t.Run("records trace from parallel judge activities", func(t *testing.T) {
		f := newFixture(t)
		env := suite.NewTestWorkflowEnvironment()
		f.register(env)

		env.ExecuteWorkflow(EvaluateTaskWorkflow, validRequest())
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var trace domain.Trace
		require.NoError(t, env.GetWorkflowResult(&trace))
		assert.InDelta(t, 0.975, trace.Score.FinalScore, 1e-9)
		require.Len(t, trace.JudgeCalls, 3)
		assert.Equal(t, domain.JudgeSemantic, trace.JudgeCalls[0].Judge)

		stored, err := f.store.Get(context.Background(), "run-1", "t1")
		require.NoError(t, err)
		assert.Equal(t, trace.Score, stored.Score)
	})

	t.Run("exact match bypasses numeric judge", func(t *testing.T) {
		f := newFixture(t)
		env := suite.NewTestWorkflowEnvironment()
		f.register(env)
		req := validRequest()
		req.Task.ModelAnswer = "$5.2B"

		env.ExecuteWorkflow(EvaluateTaskWorkflow, req)
		require.NoError(t, env.GetWorkflowError())

		var trace domain.Trace
		require.NoError(t, env.GetWorkflowResult(&trace))
		call, ok := trace.Call(domain.JudgeNumeric)
		require.True(t, ok)
		assert.True(t, call.Bypassed)
		assert.Zero(t, f.numericCalls.Load())
		assert.Equal(t, 1.0, trace.Score.FinalScore)
	})

	t.Run("failed judge activity is degraded", func(t *testing.T) {
		f := newFixture(t)
		env := suite.NewTestWorkflowEnvironment()
		f.register(env)
		env.OnActivity(f.acts.InvokeJudge, mock.Anything, mock.Anything).Return(
			func(ctx context.Context, in evaluation.JudgeActivityInput) (domain.JudgeCall, error) {
				if in.Judge == domain.JudgeNumeric {
					return domain.JudgeCall{}, errors.New("worker lost")
				}
				return f.acts.InvokeJudge(ctx, in)
			})
		req := validRequest()
		req.JudgeVersions = map[domain.JudgeName]string{domain.JudgeNumeric: "v7"}

		env.ExecuteWorkflow(EvaluateTaskWorkflow, req)
		require.NoError(t, env.GetWorkflowError())

		var trace domain.Trace
		require.NoError(t, env.GetWorkflowResult(&trace))
		call, _ := trace.Call(domain.JudgeNumeric)
		assert.True(t, call.Degraded)
		assert.Equal(t, "v7", call.Version)
		require.NotNil(t, call.Error)
		assert.Contains(t, *call.Error, "worker lost")
		assert.Equal(t, domain.FailureParseError, trace.Outputs.Numeric.FailureReason)
		assert.Contains(t, trace.ErrorTaxonomy,
			domain.TaxonomyEntry{Judge: domain.JudgeNumeric, Kind: domain.ErrorKindUnrecovered})
		assert.True(t, trace.Score.HasFlag(domain.FlagNumericError))
	})

	t.Run("invalid request fails validation", func(t *testing.T) {
		env := suite.NewTestWorkflowEnvironment()
		env.ExecuteWorkflow(EvaluateTaskWorkflow, EvaluateTaskRequest{})
		require.True(t, env.IsWorkflowCompleted())

		err := env.GetWorkflowError()
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Validation", appErr.Type())
		assert.True(t, appErr.NonRetryable())
	})
}

func TestEvaluateTaskRequest_Validate(t *testing.T) {
	req := validRequest()
	assert.NoError(t, req.Validate())

	req.RunID = ""
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)

	req = validRequest()
	req.Task.ID = ""
	assert.ErrorIs(t, req.Validate(), domain.ErrInvalidTask)

	req = validRequest()
	req.TaskTimeout = -time.Second
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
}
