// Package domain defines the evaluation types shared by the judge client,
// interpreter, consistency analyzer, hybrid scorer and audit recorder.
//
// Scoring Model:
//   - Three judges (semantic, numeric, contradiction) produce canonical JudgeOutputs.
//   - Consistency flags are derived from the outputs and never stored as ground truth.
//   - A ScoreResult combines base score and penalties into a final score in [0,1].
//   - A Trace is the immutable, replayable record of one task evaluation.
package domain

import (
	"fmt"
	"slices"
)

// ConsistencyFlag is a derived signal describing one pattern of inter-judge
// disagreement or answer quality.
type ConsistencyFlag string

const (
	FlagNumericError          ConsistencyFlag = "numeric_error"
	FlagWrongMetric           ConsistencyFlag = "wrong_metric"
	FlagContradictionViolated ConsistencyFlag = "contradiction_violated"
	FlagHedgedAnswer          ConsistencyFlag = "hedged_answer"
	FlagHighDisagreement      ConsistencyFlag = "high_disagreement"
)

// flagOrder fixes the serialization order of a flag set.
var flagOrder = []ConsistencyFlag{
	FlagHighDisagreement,
	FlagNumericError,
	FlagWrongMetric,
	FlagContradictionViolated,
	FlagHedgedAnswer,
}

// Flags is a set of consistency flags. The zero value is an empty set.
type Flags map[ConsistencyFlag]bool

// NewFlags builds a set from the given flags.
func NewFlags(flags ...ConsistencyFlag) Flags {
	f := make(Flags, len(flags))
	for _, fl := range flags {
		f[fl] = true
	}
	return f
}

// Has reports whether flag is set.
func (f Flags) Has(flag ConsistencyFlag) bool { return f[flag] }

// List returns the set flags in canonical order.
func (f Flags) List() []ConsistencyFlag {
	out := make([]ConsistencyFlag, 0, len(f))
	for _, fl := range flagOrder {
		if f[fl] {
			out = append(out, fl)
		}
	}
	return out
}

// ScoreResult is the final output of the hybrid scorer for one task.
type ScoreResult struct {
	BaseScore            float64           `json:"base_score"            validate:"min=0,max=1"`
	Disagreement         float64           `json:"disagreement"          validate:"min=0,max=1"`
	ConsistencyPenalty   float64           `json:"consistency_penalty"   validate:"min=0"`
	ContradictionPenalty float64           `json:"contradiction_penalty" validate:"min=0"`
	HedgingPenalty       float64           `json:"hedging_penalty"       validate:"min=0"`
	FinalScore           float64           `json:"final_score"           validate:"min=0,max=1"`
	Flags                []ConsistencyFlag `json:"flags"`
}

// TotalPenalty returns the sum of the applied deductions.
func (r ScoreResult) TotalPenalty() float64 {
	return r.ConsistencyPenalty + r.ContradictionPenalty + r.HedgingPenalty
}

// HasFlag reports whether the result carries flag.
func (r ScoreResult) HasFlag(flag ConsistencyFlag) bool {
	return slices.Contains(r.Flags, flag)
}

// Validate checks score ranges.
func (r ScoreResult) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScore, err)
	}
	return nil
}

// Clamp01 ensures a value is within the range [0, 1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
