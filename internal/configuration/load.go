package configuration

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FINJUDGE_"

// Load reads the YAML file at path over DefaultConfig, applies FINJUDGE_*
// environment overrides and validates the result. An empty path skips the
// file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays the supported environment variables onto cfg.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("JUDGE_TRANSPORT", &cfg.Judges.Transport)
	str("JUDGE_BASE_URL", &cfg.Judges.BaseURL)
	str("JUDGE_MCP_ENDPOINT", &cfg.Judges.MCPEndpoint)
	str("TRACE_STORE", &cfg.TraceStore.Kind)
	str("TRACE_DIR", &cfg.TraceStore.Dir)
	str("REDIS_ADDR", &cfg.TraceStore.RedisAddr)
	str("REDIS_PREFIX", &cfg.TraceStore.RedisPrefix)
	str("POSTGRES_DSN", &cfg.TraceStore.PostgresDSN)
	str("TEMPORAL_HOST_PORT", &cfg.Temporal.HostPort)
	str("TEMPORAL_NAMESPACE", &cfg.Temporal.Namespace)
	str("TEMPORAL_TASK_QUEUE", &cfg.Temporal.TaskQueue)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("API_TOKEN", &cfg.HTTP.APIToken)
	str("LOG_LEVEL", &cfg.Observability.LogLevel)
	str("LOG_FORMAT", &cfg.Observability.LogFormat)

	var errs []error
	if v, ok := lookup(EnvPrefix + "CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err))
		} else {
			cfg.Runner.Concurrency = n
		}
	}
	if v, ok := lookup(EnvPrefix + "TASK_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTASK_TIMEOUT: %w", EnvPrefix, err))
		} else {
			cfg.Runner.TaskTimeout = d
		}
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err))
		} else {
			cfg.RateLimit.TokensPerSecond = f
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
