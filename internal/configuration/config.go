// Package configuration holds the process configuration of finjudge: judge
// endpoints, scoring weights, trace storage, run scheduling, Temporal and
// observability settings.
package configuration

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/finjudge/internal/domain"
)

// ErrInvalidConfig indicates a configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Judge transport kinds.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
)

// Trace store kinds.
const (
	StoreMemory   = "memory"
	StoreJSONL    = "jsonl"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is the complete configuration of one finjudge process.
type Config struct {
	// Scoring weights and thresholds, snapshotted into every trace.
	Scoring domain.ScoringConfig `yaml:"scoring"`

	// Judge capability boundary
	Judges JudgesConfig `yaml:"judges"`

	// Outbound judge rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Per-judge failure isolation
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`

	// Trace persistence
	TraceStore TraceStoreConfig `yaml:"trace_store"`

	// Run scheduling
	Runner RunnerConfig `yaml:"runner"`

	// Durable execution
	Temporal TemporalConfig `yaml:"temporal"`

	// HTTP API
	HTTP HTTPConfig `yaml:"http"`

	Observability ObservabilityConfig `yaml:"observability"`
}

// JudgesConfig describes how judges are reached and which versions are recorded.
type JudgesConfig struct {
	Transport   string        `yaml:"transport"    validate:"oneof=http mcp"`
	BaseURL     string        `yaml:"base_url"     validate:"omitempty,url"`
	MCPEndpoint string        `yaml:"mcp_endpoint"`
	HTTPTimeout time.Duration `yaml:"http_timeout" validate:"min=0"`

	// Versions maps judge name to the version string recorded on each call.
	Versions map[domain.JudgeName]string `yaml:"versions"`
}

// RateLimitConfig controls the token bucket shared by all judge calls.
type RateLimitConfig struct {
	Enabled         bool    `yaml:"enabled"`
	TokensPerSecond float64 `yaml:"tokens_per_second" validate:"min=0"`
	BurstSize       int     `yaml:"burst_size"        validate:"min=0"`
}

// CircuitBreakerConfig controls the per-judge breaker in front of the transport.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" validate:"min=0"`
	OpenTimeout      time.Duration `yaml:"open_timeout"      validate:"min=0"`
}

// TraceStoreConfig selects and configures the append-only trace store.
type TraceStoreConfig struct {
	Kind        string `yaml:"kind"         validate:"oneof=memory jsonl redis postgres"`
	Dir         string `yaml:"dir"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"     validate:"min=0"`
	RedisPrefix string `yaml:"redis_prefix"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RunnerConfig bounds task concurrency and per-task latency.
type RunnerConfig struct {
	Concurrency int           `yaml:"concurrency"  validate:"min=1"`
	TaskTimeout time.Duration `yaml:"task_timeout" validate:"gt=0"`
}

// TemporalConfig locates the Temporal frontend used by the worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`

	// APIToken, when set, is required as a bearer token on /v1 routes.
	APIToken string `yaml:"api_token"`
}

// ObservabilityConfig controls structured logging.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"  validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

// Validate checks field ranges and the settings each selected backend needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for name := range c.Judges.Versions {
		if !name.Valid() {
			return fmt.Errorf("%w: judges.versions: %w: %q", ErrInvalidConfig, domain.ErrUnknownJudge, name)
		}
	}

	switch c.Judges.Transport {
	case TransportHTTP:
		if c.Judges.BaseURL == "" {
			return fmt.Errorf("%w: judges.base_url is required for the http transport", ErrInvalidConfig)
		}
	case TransportMCP:
		if c.Judges.MCPEndpoint == "" {
			return fmt.Errorf("%w: judges.mcp_endpoint is required for the mcp transport", ErrInvalidConfig)
		}
	}

	switch c.TraceStore.Kind {
	case StoreJSONL:
		if c.TraceStore.Dir == "" {
			return fmt.Errorf("%w: trace_store.dir is required for the jsonl store", ErrInvalidConfig)
		}
	case StoreRedis:
		if c.TraceStore.RedisAddr == "" {
			return fmt.Errorf("%w: trace_store.redis_addr is required for the redis store", ErrInvalidConfig)
		}
	case StorePostgres:
		if c.TraceStore.PostgresDSN == "" {
			return fmt.Errorf("%w: trace_store.postgres_dsn is required for the postgres store", ErrInvalidConfig)
		}
	}
	return nil
}
