package judge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/finjudge/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	fail := true
	var calls int
	core := TransportFunc(func(context.Context, domain.JudgeName, domain.JudgeInput) ([]byte, error) {
		calls++
		if fail {
			return nil, errors.New("boom")
		}
		return []byte(`{}`), nil
	})
	tr := Chain(core, CircuitBreakerMiddleware(2, time.Minute, WithBreakerClock(clock.now)))
	ctx := context.Background()
	call := func(name domain.JudgeName) error {
		_, err := tr.Call(ctx, name, domain.JudgeInput{})
		return err
	}

	require.Error(t, call(domain.JudgeNumeric))
	require.Error(t, call(domain.JudgeNumeric))
	assert.Equal(t, 2, calls)

	err := call(domain.JudgeNumeric)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 2, calls, "open breaker does not reach the judge")

	fail = false
	require.NoError(t, call(domain.JudgeSemantic), "breakers are per judge")

	clock.advance(2 * time.Minute)
	require.NoError(t, call(domain.JudgeNumeric), "trial after the open timeout")
	require.NoError(t, call(domain.JudgeNumeric), "closed again after a successful trial")
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	core := TransportFunc(func(context.Context, domain.JudgeName, domain.JudgeInput) ([]byte, error) {
		return nil, errors.New("boom")
	})
	tr := Chain(core, CircuitBreakerMiddleware(1, time.Minute, WithBreakerClock(clock.now)))
	ctx := context.Background()

	_, err := tr.Call(ctx, domain.JudgeContradiction, domain.JudgeInput{})
	require.NotErrorIs(t, err, ErrCircuitOpen)

	clock.advance(2 * time.Minute)
	_, err = tr.Call(ctx, domain.JudgeContradiction, domain.JudgeInput{})
	require.NotErrorIs(t, err, ErrCircuitOpen, "trial reaches the judge")

	_, err = tr.Call(ctx, domain.JudgeContradiction, domain.JudgeInput{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	core := TransportFunc(func(ctx context.Context, _ domain.JudgeName, _ domain.JudgeInput) ([]byte, error) {
		return nil, ctx.Err()
	})
	tr := Chain(core, CircuitBreakerMiddleware(1, time.Minute))

	for range 3 {
		_, err := tr.Call(ctx, domain.JudgeSemantic, domain.JudgeInput{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
