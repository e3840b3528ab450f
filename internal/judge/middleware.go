package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/finjudge/internal/domain"
)

// RateLimitMiddleware applies a token bucket shared by all judges. Calls block
// until a token is available or ctx ends. A non-positive rps disables limiting.
func RateLimitMiddleware(rps float64, burst int) Middleware {
	if rps <= 0 {
		return func(next Transport) Transport { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) ([]byte, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limit wait: %w", ErrTransport, err)
			}
			return next.Call(ctx, name, in)
		})
	}
}

// LoggingMiddleware logs every transport attempt with its latency.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "judge_transport")
	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) ([]byte, error) {
			start := time.Now()
			raw, err := next.Call(ctx, name, in)
			latency := time.Since(start)
			if err != nil {
				logger.WarnContext(ctx, "judge transport error",
					"judge", name, "latency", latency, "error", err)
				return nil, err
			}
			logger.DebugContext(ctx, "judge transport ok",
				"judge", name, "latency", latency, "bytes", len(raw))
			return raw, nil
		})
	}
}
