// Package activity provides infrastructure shared by Temporal activity
// implementations: execution metadata, best-effort event emission and logging
// that is safe outside an activity context.
package activity

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/ahrav/finjudge/pkg/events"
)

// WorkflowContext identifies the execution an activity runs in.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
}

// BaseActivities is embedded by every activity type.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities creates a base with sink. A nil sink disables events.
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// GetWorkflowContext extracts execution metadata from ctx. Outside an
// activity, where activity.GetInfo panics, it returns fixed test identifiers.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	var wfCtx WorkflowContext
	func() {
		defer func() {
			if recover() != nil {
				wfCtx = WorkflowContext{
					WorkflowID: "local",
					RunID:      "local",
					ActivityID: "local",
				}
			}
		}()
		info := activity.GetInfo(ctx)
		wfCtx.WorkflowID = info.WorkflowExecution.ID
		wfCtx.RunID = info.WorkflowExecution.RunID
		wfCtx.ActivityID = info.ActivityID
	}()
	return wfCtx
}

// EmitEventSafe appends envelope to the sink with one retry after a short
// delay. Failures are logged and never returned.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, envelope events.Envelope, description string) {
	if b.eventSink == nil {
		return
	}

	const maxAttempts = 2
	const retryDelay = 200 * time.Millisecond

	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				SafeLogError(ctx, "event emission cancelled: "+description, "event_type", envelope.Type)
				return
			}
		}
		if lastErr = b.eventSink.Append(ctx, envelope); lastErr == nil {
			SafeLog(ctx, "event emitted: "+description,
				"event_type", envelope.Type,
				"idempotency_key", envelope.IdempotencyKey)
			return
		}
	}
	SafeLogError(ctx, "event emission failed: "+description,
		"event_type", envelope.Type,
		"attempts", maxAttempts,
		"error", lastErr)
}

// SafeLog logs through the activity logger. Outside an activity it is a no-op.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records an activity heartbeat. Outside an activity it is a no-op.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}
