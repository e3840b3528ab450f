package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/finjudge/internal/domain"
)

// Recorder assembles and persists one Trace per task.
type Recorder struct {
	store  Store
	cfg    domain.ScoringConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder creates a recorder that snapshots cfg into every trace.
func NewRecorder(store Store, cfg domain.ScoringConfig) *Recorder {
	return &Recorder{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "audit_recorder"),
	}
}

// Store returns the underlying store for reads.
func (r *Recorder) Store() Store { return r.store }

// Record builds the trace of task from its judge calls, interpreted outputs and
// score, validates it and writes it exactly once. Calls are stored in fixed
// judge order regardless of completion order.
func (r *Recorder) Record(
	ctx context.Context,
	runID string,
	task domain.Task,
	calls []domain.JudgeCall,
	outs domain.JudgeOutputs,
	score domain.ScoreResult,
) (*domain.Trace, error) {
	trace := Assemble(runID, task, calls, outs, score, r.cfg, r.now().UTC())
	if err := trace.Validate(); err != nil {
		return nil, fmt.Errorf("record %s/%s: %w", runID, task.ID, err)
	}
	if err := r.store.Put(ctx, trace); err != nil {
		return nil, fmt.Errorf("record %s/%s: %w", runID, task.ID, err)
	}
	r.logger.DebugContext(ctx, "trace recorded",
		"run_id", runID, "task_id", task.ID,
		"final_score", score.FinalScore, "flags", score.Flags)
	return trace, nil
}

// Assemble builds a trace without persisting it. It is deterministic given its
// arguments, which lets workflow code construct traces from replayed history.
func Assemble(
	runID string,
	task domain.Task,
	calls []domain.JudgeCall,
	outs domain.JudgeOutputs,
	score domain.ScoreResult,
	cfg domain.ScoringConfig,
	recordedAt time.Time,
) *domain.Trace {
	ordered := make([]domain.JudgeCall, 0, len(calls))
	for _, name := range domain.Judges() {
		for _, c := range calls {
			if c.Judge == name {
				ordered = append(ordered, c)
			}
		}
	}
	return &domain.Trace{
		RunID:         runID,
		TaskID:        task.ID,
		RecordedAt:    recordedAt,
		Task:          task,
		JudgeCalls:    ordered,
		Outputs:       outs,
		Score:         score,
		ErrorTaxonomy: domain.BuildTaxonomy(ordered, outs),
		ScoringConfig: cfg,
	}
}
