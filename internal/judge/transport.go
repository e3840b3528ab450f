package judge

import (
	"context"

	"github.com/ahrav/finjudge/internal/domain"
)

// Transport carries one judge request to a judge capability and returns the raw
// response payload. Implementations are stateless request/response boundaries;
// HTTP, MCP and in-process judges all satisfy it.
type Transport interface {
	Call(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) ([]byte, error)

// Call implements Transport.
func (f TransportFunc) Call(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) ([]byte, error) {
	return f(ctx, name, in)
}

// Pinger is implemented by transports that can check judge reachability before
// a run starts.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Middleware wraps a Transport with cross-cutting behavior.
type Middleware func(Transport) Transport

// Chain builds a middleware pipeline around a core transport.
// The first middleware is outermost. If the core transport is a Pinger the
// returned transport is one too.
func Chain(t Transport, middlewares ...Middleware) Transport {
	core := t
	for i := len(middlewares) - 1; i >= 0; i-- {
		t = middlewares[i](t)
	}
	if p, ok := core.(Pinger); ok && len(middlewares) > 0 {
		return chained{Transport: t, pinger: p}
	}
	return t
}

// chained keeps Ping reachable through a middleware pipeline.
type chained struct {
	Transport
	pinger Pinger
}

func (c chained) Ping(ctx context.Context) error { return c.pinger.Ping(ctx) }

// Ping checks the reachability of t. Transports that cannot be pinged are
// assumed reachable.
func Ping(ctx context.Context, t Transport) error {
	if p, ok := t.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
