// Package judge invokes the three judge capabilities over a pluggable
// transport. It enforces each judge's response schema, retries a failed call
// exactly once and synthesizes a degraded output when the retry also fails,
// so every invocation yields a JudgeCall value and never an error.
package judge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ahrav/finjudge/internal/domain"
)

// DefaultVersion is recorded for judges without a configured version.
const DefaultVersion = "v1"

// Confidence recorded on a synthesized numeric-family output.
const degradedNumericConfidence = 0.5

// attemptState is a step of the invocation state machine:
// first attempt, then retry, then either succeeded or degraded.
type attemptState uint8

const (
	stateFirstAttempt attemptState = iota
	stateRetry
	stateSucceeded
	stateDegraded
)

func (s attemptState) String() string {
	switch s {
	case stateFirstAttempt:
		return "first_attempt"
	case stateRetry:
		return "retry"
	case stateSucceeded:
		return "succeeded"
	case stateDegraded:
		return "degraded"
	}
	return "unknown"
}

// terminal reports whether no further attempt follows s.
func (s attemptState) terminal() bool { return s == stateSucceeded || s == stateDegraded }

// nextState advances the machine after an attempt. A cancelled context ends
// the machine immediately; otherwise one retry is allowed.
func nextState(s attemptState, err error, ctxDone bool) attemptState {
	switch {
	case err == nil:
		return stateSucceeded
	case ctxDone:
		return stateDegraded
	case s == stateFirstAttempt:
		return stateRetry
	default:
		return stateDegraded
	}
}

// Option configures a Client.
type Option func(*Client)

// WithVersions sets the version string recorded for each judge.
func WithVersions(versions map[domain.JudgeName]string) Option {
	return func(c *Client) {
		for k, v := range versions {
			c.versions[k] = v
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMiddleware wraps the transport with the given middlewares, first outermost.
func WithMiddleware(mws ...Middleware) Option {
	return func(c *Client) { c.transport = Chain(c.transport, mws...) }
}

// Client invokes judges. It is safe for concurrent use if its transport is.
type Client struct {
	transport Transport
	versions  map[domain.JudgeName]string
	logger    *slog.Logger
}

// NewClient creates a client over t.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		versions:  make(map[domain.JudgeName]string, 3),
		logger:    slog.Default().With("component", "judge_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the version recorded for judge name.
func (c *Client) Version(name domain.JudgeName) string {
	if v, ok := c.versions[name]; ok && v != "" {
		return v
	}
	return DefaultVersion
}

// Versions returns the version of every judge.
func (c *Client) Versions() map[domain.JudgeName]string {
	out := make(map[domain.JudgeName]string, 3)
	for _, n := range domain.Judges() {
		out[n] = c.Version(n)
	}
	return out
}

// Ping checks that the judge capability boundary is reachable.
func (c *Client) Ping(ctx context.Context) error { return Ping(ctx, c.transport) }

// Invoke calls judge name with in. A schema violation or transport failure is
// retried once with the same input. If the retry fails too, or ctx ends first,
// the returned call carries a synthesized degraded output and the last error.
func (c *Client) Invoke(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) domain.JudgeCall {
	version := c.Version(name)
	started := time.Now()

	var (
		state    = stateFirstAttempt
		attempts int
		payload  []byte
		err      error
	)
	for !state.terminal() {
		attempts++
		payload, err = c.attempt(ctx, name, in)
		state = nextState(state, err, ctx.Err() != nil)
		if state == stateRetry {
			c.logger.WarnContext(ctx, "judge call failed, retrying",
				"judge", name, "error", err)
		}
	}

	var call domain.JudgeCall
	if state == stateDegraded {
		c.logger.ErrorContext(ctx, "judge call unrecovered",
			"judge", name, "attempts", attempts, "error", err)
		call = Degraded(name, version, in, err, attempts)
	} else {
		call = domain.JudgeCall{
			Judge:         name,
			Version:       version,
			PromptHash:    PromptHash(name, version, in),
			InputPayload:  in,
			OutputPayload: payload,
			Attempts:      attempts,
		}
	}
	call.StartedAt = started.UTC()
	call.LatencyMs = time.Since(started).Milliseconds()
	return call
}

func (c *Client) attempt(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) ([]byte, error) {
	raw, err := c.transport.Call(ctx, name, in)
	if err != nil {
		return nil, err
	}
	normalized, repaired, err := ValidatePayload(name, raw)
	if err != nil {
		return nil, err
	}
	if repaired {
		c.logger.DebugContext(ctx, "judge response repaired", "judge", name)
	}
	return normalized, nil
}

// Bypass records a numeric judge call short-circuited by an exact textual
// match. The transport is never reached.
func (c *Client) Bypass(name domain.JudgeName, in domain.JudgeInput) domain.JudgeCall {
	version := c.Version(name)
	one := 1.0
	payload, _ := json.Marshal(Payload{
		Score:         &one,
		Confidence:    &one,
		FailureReason: string(domain.FailureNone),
		Reason:        "exact textual match",
	})
	return domain.JudgeCall{
		Judge:         name,
		Version:       version,
		PromptHash:    PromptHash(name, version, in),
		InputPayload:  in,
		OutputPayload: payload,
		StartedAt:     time.Now().UTC(),
		Bypassed:      true,
	}
}

// Degraded synthesizes the call recorded when a judge could not be recovered.
// Numeric-family judges get {0, 0.5, parse_error}; the others get a
// zero-confidence extraction_failed marker. It is a pure function of its
// arguments, so deterministic contexts such as workflows may call it.
func Degraded(name domain.JudgeName, version string, in domain.JudgeInput, cause error, attempts int) domain.JudgeCall {
	msg := "judge call failed"
	if cause != nil {
		msg = cause.Error()
	}
	return domain.JudgeCall{
		Judge:         name,
		Version:       version,
		PromptHash:    PromptHash(name, version, in),
		InputPayload:  in,
		OutputPayload: DegradedPayload(name, msg),
		Attempts:      attempts,
		Degraded:      true,
		Error:         &msg,
	}
}

// DegradedPayload returns the synthesized output payload for judge name.
func DegradedPayload(name domain.JudgeName, reason string) []byte {
	zero := 0.0
	p := Payload{Score: &zero, Reason: "unrecovered judge error: " + reason}
	switch {
	case name.NumericFamily():
		conf := degradedNumericConfidence
		p.Confidence = &conf
		p.FailureReason = string(domain.FailureParseError)
	default:
		p.Confidence = &zero
		p.FailureReason = string(domain.FailureExtractionFailed)
	}
	if name == domain.JudgeContradiction {
		violated := false
		p.Violated = &violated
	}
	b, _ := json.Marshal(p)
	return b
}
