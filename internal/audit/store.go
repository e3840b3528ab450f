// Package audit records one immutable Trace per evaluated task and reads them
// back for offline replay. Stores are append-only: a trace is keyed by run id
// and task id and can be written exactly once.
package audit

import (
	"context"
	"errors"

	"github.com/ahrav/finjudge/internal/domain"
)

var (
	// ErrTraceExists is returned when a trace for the same run and task was
	// already recorded.
	ErrTraceExists = errors.New("trace already recorded")

	// ErrTraceNotFound is returned when no trace exists for a run and task.
	ErrTraceNotFound = errors.New("trace not found")

	// ErrManifestNotFound is returned when a run has no manifest.
	ErrManifestNotFound = errors.New("run manifest not found")
)

// Store persists traces. Put must be safe for concurrent use across tasks and
// must reject a second write for the same (run id, task id). Every method
// rejects run ids that fail domain.ValidateRunID with domain.ErrInvalidRunID.
type Store interface {
	Put(ctx context.Context, t *domain.Trace) error
	Get(ctx context.Context, runID, taskID string) (*domain.Trace, error)
	// List returns the traces of a run in recording order.
	List(ctx context.Context, runID string) ([]*domain.Trace, error)
}

// ManifestStore persists per-run manifests. Unlike traces, a manifest is
// rewritten as the run progresses.
type ManifestStore interface {
	PutManifest(ctx context.Context, m domain.RunManifest) error
	GetManifest(ctx context.Context, runID string) (domain.RunManifest, error)
}
