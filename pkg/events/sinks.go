package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LogSink writes every event to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through l, or the default logger when nil.
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l.With("component", "events")}
}

// Append implements EventSink.
func (s *LogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.InfoContext(ctx, "event",
		"type", e.Type, "source", e.Source,
		"idempotency_key", e.IdempotencyKey, "payload", string(e.Payload))
	return nil
}

// MemorySink keeps events in memory, deduplicated by idempotency key.
type MemorySink struct {
	mu     sync.Mutex
	seen   map[string]bool
	events []Envelope
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: map[string]bool{}}
}

// Append implements EventSink.
func (s *MemorySink) Append(_ context.Context, e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.IdempotencyKey != "" && s.seen[e.IdempotencyKey] {
		return nil
	}
	s.seen[e.IdempotencyKey] = true
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the appended events in order.
func (s *MemorySink) Events() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.events...)
}

// DefaultDedupTTL bounds how long a Redis sink remembers idempotency keys.
const DefaultDedupTTL = 24 * time.Hour

// RedisStreamSink appends events to a Redis stream. A SETNX guard on the
// idempotency key drops duplicates from retried activities.
type RedisStreamSink struct {
	client   redis.UniversalClient
	stream   string
	dedupTTL time.Duration
}

// NewRedisStreamSink creates a sink writing to stream.
func NewRedisStreamSink(client redis.UniversalClient, stream string) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, dedupTTL: DefaultDedupTTL}
}

// Append implements EventSink.
func (s *RedisStreamSink) Append(ctx context.Context, e Envelope) error {
	if e.IdempotencyKey != "" {
		fresh, err := s.client.SetNX(ctx, s.stream+":seen:"+e.IdempotencyKey, e.ID, s.dedupTTL).Result()
		if err != nil {
			return fmt.Errorf("event dedup guard: %w", err)
		}
		if !fresh {
			return nil
		}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"type": e.Type, "envelope": data},
	}).Err()
	if err != nil {
		return fmt.Errorf("append event to %s: %w", s.stream, err)
	}
	return nil
}
