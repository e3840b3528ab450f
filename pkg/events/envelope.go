// Package events carries evaluation events to downstream consumers. Events are
// observability signals: emitting them never decides whether a task is scored
// or recorded.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the evaluation activities.
const (
	TypeTaskScored    = "evaluation.task_scored"
	TypeJudgeDegraded = "evaluation.judge_degraded"
)

// SchemaVersion is the payload schema version of every event type.
const SchemaVersion = "1.0.0"

// Envelope wraps an event payload with routing and deduplication metadata.
type Envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Source  string `json:"source"`
	Version string `json:"version"`

	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is derived from the run, task and event type, so a retried
	// activity produces the same key.
	IdempotencyKey string `json:"idempotency_key"`

	// WorkflowID and RunID identify the Temporal execution, when there is one.
	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an envelope of eventType.
func NewEnvelope(eventType, source, idempotencyKey string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         source,
		Version:        SchemaVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		Payload:        raw,
	}, nil
}

// EventSink receives envelopes. Implementations treat a repeated idempotency
// key as a no-op.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error { return nil }

// NewNoOpEventSink creates a sink that discards events.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}
