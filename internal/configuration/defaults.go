package configuration

import (
	"time"

	"github.com/ahrav/finjudge/internal/domain"
)

// Judge transport constants.
const (
	DefaultJudgeBaseURL       = "http://localhost:8081"
	DefaultHTTPTimeoutSeconds = 30
)

// Rate limiting constants.
const (
	DefaultTokensPerSecond = 10
	DefaultBurstSize       = 20
)

// Circuit breaker constants.
const (
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerOpenTimeout      = 30 * time.Second
)

// Run scheduling constants.
const (
	DefaultConcurrency = 4
	DefaultTaskTimeout = 120 * time.Second
)

// Storage constants.
const (
	DefaultTraceDir    = "traces"
	DefaultRedisPrefix = "finjudge"
)

// Service constants.
const (
	DefaultTemporalHostPort  = "localhost:7233"
	DefaultTemporalNamespace = "default"
	DefaultTaskQueue         = "finjudge-evaluation"
	DefaultHTTPAddr          = ":8080"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// DefaultConfig returns a configuration that evaluates against a local judge
// service over HTTP and writes JSONL traces to ./traces.
func DefaultConfig() *Config {
	return &Config{
		Scoring: domain.DefaultScoringConfig(),
		Judges: JudgesConfig{
			Transport:   TransportHTTP,
			BaseURL:     DefaultJudgeBaseURL,
			HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
			Versions:    map[domain.JudgeName]string{},
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultBreakerFailureThreshold,
			OpenTimeout:      DefaultBreakerOpenTimeout,
		},
		TraceStore: TraceStoreConfig{
			Kind:        StoreJSONL,
			Dir:         DefaultTraceDir,
			RedisPrefix: DefaultRedisPrefix,
		},
		Runner: RunnerConfig{
			Concurrency: DefaultConcurrency,
			TaskTimeout: DefaultTaskTimeout,
		},
		Temporal: TemporalConfig{
			HostPort:  DefaultTemporalHostPort,
			Namespace: DefaultTemporalNamespace,
			TaskQueue: DefaultTaskQueue,
		},
		HTTP: HTTPConfig{Addr: DefaultHTTPAddr},
		Observability: ObservabilityConfig{
			LogLevel:  DefaultLogLevel,
			LogFormat: DefaultLogFormat,
		},
	}
}
