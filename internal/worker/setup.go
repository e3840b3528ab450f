// Package worker builds the runtime dependencies of finjudge from
// configuration and registers the evaluation workflow with a Temporal worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/ahrav/finjudge/internal/audit"
	"github.com/ahrav/finjudge/internal/configuration"
	"github.com/ahrav/finjudge/internal/evaluation"
	"github.com/ahrav/finjudge/internal/judge"
	"github.com/ahrav/finjudge/internal/scoring"
	"github.com/ahrav/finjudge/pkg/events"
)

// EventStream is the Redis stream evaluation events are appended to.
const EventStream = "finjudge:events"

// Resources holds everything built from configuration that must be closed.
type Resources struct {
	Judges *judge.Client
	Store  audit.Store
	Events events.EventSink

	closers []func() error
}

// Close releases resources in reverse order of creation.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Initialize builds the judge client, trace store and event sink described by
// cfg. On error everything already opened is closed.
func Initialize(ctx context.Context, cfg *configuration.Config) (*Resources, error) {
	res := &Resources{}

	judges, err := InitializeJudgeClient(ctx, cfg, res)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	res.Judges = judges

	if err := initializeStore(ctx, cfg, res); err != nil {
		_ = res.Close()
		return nil, err
	}
	return res, nil
}

// InitializeJudgeClient creates the judge client with logging, circuit breaker
// and rate limiting middleware. Closers for the transport are registered on res.
func InitializeJudgeClient(ctx context.Context, cfg *configuration.Config, res *Resources) (*judge.Client, error) {
	var transport judge.Transport
	switch cfg.Judges.Transport {
	case configuration.TransportMCP:
		t, err := judge.DialMCP(ctx, cfg.Judges.MCPEndpoint)
		if err != nil {
			return nil, err
		}
		res.closers = append(res.closers, t.Close)
		transport = t
	default:
		t, err := judge.NewHTTPTransport(cfg.Judges.BaseURL, &http.Client{Timeout: cfg.Judges.HTTPTimeout})
		if err != nil {
			return nil, err
		}
		transport = t
	}

	mws := []judge.Middleware{judge.LoggingMiddleware(slog.Default())}
	if cfg.CircuitBreaker.Enabled {
		mws = append(mws, judge.CircuitBreakerMiddleware(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.OpenTimeout))
	}
	if cfg.RateLimit.Enabled {
		mws = append(mws, judge.RateLimitMiddleware(cfg.RateLimit.TokensPerSecond, cfg.RateLimit.BurstSize))
	}
	return judge.NewClient(transport,
		judge.WithVersions(cfg.Judges.Versions),
		judge.WithMiddleware(mws...),
	), nil
}

func initializeStore(ctx context.Context, cfg *configuration.Config, res *Resources) error {
	sc := cfg.TraceStore
	switch sc.Kind {
	case configuration.StoreMemory:
		res.Store = audit.NewMemoryStore()
		res.Events = events.NewLogSink(slog.Default())
	case configuration.StoreJSONL:
		s, err := audit.NewJSONLStore(sc.Dir)
		if err != nil {
			return err
		}
		res.closers = append(res.closers, s.Close)
		res.Store = s
		res.Events = events.NewLogSink(slog.Default())
	case configuration.StoreRedis:
		rc := redis.NewClient(&redis.Options{Addr: sc.RedisAddr, DB: sc.RedisDB})
		res.closers = append(res.closers, rc.Close)
		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", sc.RedisAddr, err)
		}
		prefix := sc.RedisPrefix
		if prefix == "" {
			prefix = audit.DefaultRedisPrefix
		}
		res.Store = audit.NewRedisStore(rc, prefix)
		res.Events = events.NewRedisStreamSink(rc, EventStream)
	case configuration.StorePostgres:
		s, err := audit.OpenPostgres(ctx, sc.PostgresDSN)
		if err != nil {
			return err
		}
		res.closers = append(res.closers, s.Close)
		res.Store = s
		res.Events = events.NewLogSink(slog.Default())
	default:
		return fmt.Errorf("%w: unknown trace store %q", configuration.ErrInvalidConfig, sc.Kind)
	}
	return nil
}

// InitializeEvaluator wires an evaluator over res using cfg's scoring
// configuration and task timeout.
func InitializeEvaluator(cfg *configuration.Config, res *Resources) (*evaluation.Evaluator, error) {
	scorer, err := scoring.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	return evaluation.NewEvaluator(res.Judges, scorer, res.Store,
		evaluation.WithTaskTimeout(cfg.Runner.TaskTimeout)), nil
}

// DialTemporal connects to the Temporal frontend described by cfg.
func DialTemporal(cfg configuration.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    temporallog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", cfg.HostPort, err)
	}
	return c, nil
}
