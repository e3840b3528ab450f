package scoring

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/interpret"
)

// ErrReplayMismatch reports a trace whose stored results differ from a
// recomputation.
var ErrReplayMismatch = errors.New("replay mismatch")

// Replay recomputes the ScoreResult of a trace from its stored judge outputs
// and its scoring config snapshot. Nothing outside the trace is consulted.
func Replay(t *domain.Trace) (domain.ScoreResult, error) {
	if err := t.ScoringConfig.Validate(); err != nil {
		return domain.ScoreResult{}, fmt.Errorf("replay %s/%s: %w", t.RunID, t.TaskID, err)
	}
	return Compute(t.ScoringConfig, t.Task, t.Outputs), nil
}

// Verify replays t and checks the result against what was recorded. It also
// re-interprets the raw judge calls and checks the stored outputs, so a trace
// whose outputs were edited after recording is detected.
func Verify(t *domain.Trace) error {
	outs, err := interpret.InterpretAll(t.JudgeCalls, t.Task.JudgeInput())
	if err != nil {
		return fmt.Errorf("verify %s/%s: %w", t.RunID, t.TaskID, err)
	}
	for _, name := range domain.Judges() {
		got, _ := outs.Get(name)
		want, _ := t.Outputs.Get(name)
		if !outputsEqual(got, want) {
			return fmt.Errorf("%w: %s/%s: %s output differs from its recorded call",
				ErrReplayMismatch, t.RunID, t.TaskID, name)
		}
	}

	replayed, err := Replay(t)
	if err != nil {
		return err
	}
	// Every field must match exactly; a nil and an empty flag list are equal.
	if diff := cmp.Diff(t.Score, replayed, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("%w: %s/%s: score differs (-recorded +replayed):\n%s",
			ErrReplayMismatch, t.RunID, t.TaskID, diff)
	}
	return nil
}

func outputsEqual(a, b domain.JudgeOutput) bool {
	return a.Judge == b.Judge &&
		a.Score == b.Score &&
		a.Confidence == b.Confidence &&
		a.FailureReason == b.FailureReason &&
		a.Violated == b.Violated &&
		slices.Equal(a.ContradictionKinds, b.ContradictionKinds)
}
