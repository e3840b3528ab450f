package judge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahrav/finjudge/internal/domain"
)

// ErrCircuitOpen is returned without contacting the judge while its breaker is
// open. It wraps ErrTransport so callers degrade the call as usual.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", ErrTransport)

// Breaker defaults.
const (
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerOpenTimeout      = 30 * time.Second
)

// CircuitState is the state of one judge's breaker.
type CircuitState int32

const (
	// StateClosed allows calls through.
	StateClosed CircuitState = iota
	// StateOpen rejects calls until the open timeout elapses.
	StateOpen
	// StateHalfOpen allows a single trial call.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker tracks consecutive failures of one judge.
type circuitBreaker struct {
	mu        sync.Mutex
	state     CircuitState
	failures  int
	openedAt  time.Time
	probing   bool
	threshold int
	timeout   time.Duration
	now       func() time.Time
	judge     domain.JudgeName
	logger    *slog.Logger
}

// allow reports whether a call may proceed and whether it is the half-open trial.
func (cb *circuitBreaker) allow() (ok, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			return false, false
		}
		cb.transition(StateHalfOpen)
	}
	if cb.probing {
		return false, false
	}
	cb.probing = true
	return true, true
}

func (cb *circuitBreaker) record(err error, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.probing = false
	}

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (cb *circuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	cb.logger.Info("circuit breaker state transition",
		"judge", cb.judge, "from", from.String(), "to", to.String())
}

// BreakerOption configures CircuitBreakerMiddleware.
type BreakerOption func(*breakerSet)

// WithBreakerClock replaces time.Now, for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(s *breakerSet) { s.now = now }
}

type breakerSet struct {
	breakers map[domain.JudgeName]*circuitBreaker
	now      func() time.Time
}

// CircuitBreakerMiddleware keeps one breaker per judge. After threshold
// consecutive failures a judge's breaker opens and calls fail fast with
// ErrCircuitOpen for openTimeout; then one trial call decides whether it closes
// again. Calls abandoned because the caller's context ended are not counted.
func CircuitBreakerMiddleware(threshold int, openTimeout time.Duration, opts ...BreakerOption) Middleware {
	if threshold < 1 {
		threshold = DefaultBreakerFailureThreshold
	}
	if openTimeout <= 0 {
		openTimeout = DefaultBreakerOpenTimeout
	}
	set := &breakerSet{breakers: make(map[domain.JudgeName]*circuitBreaker), now: time.Now}
	for _, opt := range opts {
		opt(set)
	}
	logger := slog.Default().With("component", "judge_breaker")
	for _, name := range domain.Judges() {
		set.breakers[name] = &circuitBreaker{
			threshold: threshold,
			timeout:   openTimeout,
			now:       set.now,
			judge:     name,
			logger:    logger,
		}
	}

	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) ([]byte, error) {
			cb, ok := set.breakers[name]
			if !ok {
				return next.Call(ctx, name, in)
			}
			allowed, trial := cb.allow()
			if !allowed {
				return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, name)
			}
			raw, err := next.Call(ctx, name, in)
			if err != nil && ctx.Err() != nil {
				if trial {
					cb.mu.Lock()
					cb.probing = false
					cb.mu.Unlock()
				}
				return nil, err
			}
			cb.record(err, trial)
			return raw, err
		})
	}
}
