package judge

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/finjudge/internal/domain"
)

const validNumeric = `{"score": 0.97, "confidence": 0.9, "failure_reason": "none", "reason": "values match"}`

// scriptedTransport replays responses in order and counts calls.
type scriptedTransport struct {
	responses []scripted
	calls     atomic.Int32
}

type scripted struct {
	raw string
	err error
}

func (s *scriptedTransport) Call(_ context.Context, _ domain.JudgeName, _ domain.JudgeInput) ([]byte, error) {
	i := int(s.calls.Add(1)) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	r := s.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.raw), nil
}

func testInput() domain.JudgeInput {
	return domain.JudgeInput{
		Question:    "What was Q3 revenue?",
		GoldAnswer:  "$100 million",
		ModelAnswer: "$100.2 million",
		Rubric:      []domain.RubricItem{{Operator: "correctness", Criteria: "revenue"}},
	}
}

func decode(t *testing.T, call domain.JudgeCall) Payload {
	t.Helper()
	p, err := DecodePayload(call.OutputPayload)
	require.NoError(t, err)
	return p
}

func TestNextState(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		state   attemptState
		err     error
		ctxDone bool
		want    attemptState
	}{
		{"first success", stateFirstAttempt, nil, false, stateSucceeded},
		{"first failure retries", stateFirstAttempt, boom, false, stateRetry},
		{"retry success", stateRetry, nil, false, stateSucceeded},
		{"retry failure degrades", stateRetry, boom, false, stateDegraded},
		{"cancelled first attempt degrades", stateFirstAttempt, boom, true, stateDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextState(tt.state, tt.err, tt.ctxDone))
		})
	}
}

func TestInvoke_FirstAttemptSuccess(t *testing.T) {
	tr := &scriptedTransport{responses: []scripted{{raw: validNumeric}}}
	c := NewClient(tr, WithVersions(map[domain.JudgeName]string{domain.JudgeNumeric: "numeric-v2"}))

	call := c.Invoke(context.Background(), domain.JudgeNumeric, testInput())

	assert.Equal(t, int32(1), tr.calls.Load())
	assert.Equal(t, 1, call.Attempts)
	assert.False(t, call.Degraded)
	assert.Nil(t, call.Error)
	assert.Equal(t, "numeric-v2", call.Version)
	assert.Equal(t, PromptHash(domain.JudgeNumeric, "numeric-v2", testInput()), call.PromptHash)
	assert.False(t, call.StartedAt.IsZero())
	assert.GreaterOrEqual(t, call.LatencyMs, int64(0))

	p := decode(t, call)
	require.NotNil(t, p.Score)
	assert.InDelta(t, 0.97, *p.Score, 1e-9)
	assert.Equal(t, "none", p.FailureReason)
}

func TestInvoke_RetrySucceedsIsNotAnError(t *testing.T) {
	tr := &scriptedTransport{responses: []scripted{
		{raw: `{"score": "high"}`},
		{raw: validNumeric},
	}}
	c := NewClient(tr)

	call := c.Invoke(context.Background(), domain.JudgeNumeric, testInput())

	assert.Equal(t, int32(2), tr.calls.Load())
	assert.Equal(t, 2, call.Attempts)
	assert.False(t, call.Degraded)
	assert.False(t, call.Unrecovered())
	assert.Nil(t, call.Error)
}

func TestInvoke_DegradesAfterRetry(t *testing.T) {
	tests := []struct {
		name       string
		judge      domain.JudgeName
		wantConf   float64
		wantReason domain.FailureReason
	}{
		{"numeric family", domain.JudgeNumeric, 0.5, domain.FailureParseError},
		{"semantic", domain.JudgeSemantic, 0, domain.FailureExtractionFailed},
		{"contradiction", domain.JudgeContradiction, 0, domain.FailureExtractionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{responses: []scripted{{err: ErrTransport}}}
			c := NewClient(tr)

			call := c.Invoke(context.Background(), tt.judge, testInput())

			assert.Equal(t, int32(2), tr.calls.Load(), "exactly one retry")
			assert.Equal(t, 2, call.Attempts)
			assert.True(t, call.Degraded)
			assert.True(t, call.Unrecovered())
			require.NotNil(t, call.Error)
			assert.Contains(t, *call.Error, "judge transport failed")

			p := decode(t, call)
			require.NotNil(t, p.Score)
			require.NotNil(t, p.Confidence)
			assert.Equal(t, 0.0, *p.Score)
			assert.Equal(t, tt.wantConf, *p.Confidence)
			assert.Equal(t, string(tt.wantReason), p.FailureReason)
			if tt.judge == domain.JudgeContradiction {
				require.NotNil(t, p.Violated)
				assert.False(t, *p.Violated)
			}
		})
	}
}

func TestInvoke_SchemaViolationIsRetried(t *testing.T) {
	// Contradiction responses must carry violated.
	tr := &scriptedTransport{responses: []scripted{
		{raw: `{"score": 1, "confidence": 0.9}`},
		{raw: `{"score": 0, "confidence": 0.9, "violated": true, "contradiction_kinds": ["Directional"]}`},
	}}
	c := NewClient(tr)

	call := c.Invoke(context.Background(), domain.JudgeContradiction, testInput())

	require.False(t, call.Degraded)
	assert.Equal(t, 2, call.Attempts)
	p := decode(t, call)
	require.NotNil(t, p.Violated)
	assert.True(t, *p.Violated)
	assert.Equal(t, []string{"directional"}, p.ContradictionKinds)
}

func TestInvoke_CancelledContextSkipsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := TransportFunc(func(ctx context.Context, _ domain.JudgeName, _ domain.JudgeInput) ([]byte, error) {
		cancel()
		return nil, ctx.Err()
	})
	c := NewClient(tr)

	call := c.Invoke(ctx, domain.JudgeSemantic, testInput())

	assert.Equal(t, 1, call.Attempts)
	assert.True(t, call.Degraded)
	require.NotNil(t, call.Error)
	assert.Contains(t, *call.Error, context.Canceled.Error())
}

func TestBypass(t *testing.T) {
	var called bool
	c := NewClient(TransportFunc(func(context.Context, domain.JudgeName, domain.JudgeInput) ([]byte, error) {
		called = true
		return nil, nil
	}))

	call := c.Bypass(domain.JudgeNumeric, testInput())

	assert.False(t, called)
	assert.True(t, call.Bypassed)
	assert.Equal(t, 0, call.Attempts)
	assert.False(t, call.Degraded)
	p := decode(t, call)
	assert.Equal(t, 1.0, *p.Score)
	assert.Equal(t, 1.0, *p.Confidence)
	assert.Equal(t, "none", p.FailureReason)
}

func TestDegradedPayload_IsValidJSON(t *testing.T) {
	for _, name := range domain.Judges() {
		raw := DegradedPayload(name, "timeout")
		assert.True(t, json.Valid(raw), name)
	}
}

func TestPromptHash(t *testing.T) {
	in := testInput()
	h := PromptHash(domain.JudgeSemantic, "v1", in)

	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, h)
	assert.Equal(t, h, PromptHash(domain.JudgeSemantic, "v1", in), "stable")
	assert.NotEqual(t, h, PromptHash(domain.JudgeNumeric, "v1", in), "judge is part of identity")
	assert.NotEqual(t, h, PromptHash(domain.JudgeSemantic, "v2", in), "version is part of identity")

	in.ModelAnswer = "$101 million"
	assert.NotEqual(t, h, PromptHash(domain.JudgeSemantic, "v1", in))

	tol := 0.01
	withTolerance := testInput()
	withTolerance.Tolerance = &tol
	h = PromptHash(domain.JudgeNumeric, "v1", testInput())
	assert.NotEqual(t, h, PromptHash(domain.JudgeNumeric, "v1", withTolerance), "tolerance is part of identity")
	wider := 0.05
	withWider := testInput()
	withWider.Tolerance = &wider
	assert.NotEqual(t, PromptHash(domain.JudgeNumeric, "v1", withTolerance), PromptHash(domain.JudgeNumeric, "v1", withWider))

	// Text is hashed as sent: a difference the normalizer would erase still
	// changes the identity.
	spaced := testInput()
	spaced.ModelAnswer = "  " + spaced.ModelAnswer + "!"
	assert.NotEqual(t, PromptHash(domain.JudgeSemantic, "v1", testInput()), PromptHash(domain.JudgeSemantic, "v1", spaced))

	empty := domain.JudgeInput{}
	withEmptyRubric := domain.JudgeInput{Rubric: []domain.RubricItem{}}
	assert.Equal(t, PromptHash(domain.JudgeSemantic, "v1", empty), PromptHash(domain.JudgeSemantic, "v1", withEmptyRubric))
}

func TestVersions_DefaultsMissing(t *testing.T) {
	c := NewClient(TransportFunc(nil), WithVersions(map[domain.JudgeName]string{domain.JudgeSemantic: "sem-3"}))

	v := c.Versions()
	assert.Equal(t, "sem-3", v[domain.JudgeSemantic])
	assert.Equal(t, DefaultVersion, v[domain.JudgeNumeric])
	assert.Equal(t, DefaultVersion, v[domain.JudgeContradiction])
}
