// Package consistency compares the interpreted outputs of the three judges for
// one task and derives consistency flags. Flags are recomputed from outputs on
// every call and never treated as stored ground truth.
package consistency

import (
	"math"

	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/interpret"
)

// thresholdEpsilon absorbs float rounding so that a disagreement of exactly
// the threshold, such as |0.7 - 0.4|, fires.
const thresholdEpsilon = 1e-9

// Result is the outcome of analyzing one task.
type Result struct {
	Flags        domain.Flags
	Disagreement float64
}

// Analyzer derives flags under a fixed scoring configuration.
type Analyzer struct {
	cfg domain.ScoringConfig
}

// NewAnalyzer creates an analyzer. cfg is copied and never mutated.
func NewAnalyzer(cfg domain.ScoringConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze compares outs for task. It is a pure function of its inputs and the
// analyzer's configuration.
func (a *Analyzer) Analyze(task domain.Task, outs domain.JudgeOutputs) Result {
	flags := domain.NewFlags()
	disagreement := Disagreement(outs)

	if disagreement >= a.cfg.DisagreementThreshold-thresholdEpsilon {
		flags[domain.FlagHighDisagreement] = true
	}
	if outs.Numeric.FailureReason != domain.FailureNone {
		flags[domain.FlagNumericError] = true
	}
	if a.wrongMetric(outs) {
		flags[domain.FlagWrongMetric] = true
	}
	if outs.Contradiction.Violated && !numericOnly(task, outs.Contradiction) {
		flags[domain.FlagContradictionViolated] = true
	}
	if IsHedged(task.ModelAnswer) {
		flags[domain.FlagHedgedAnswer] = true
	}
	return Result{Flags: flags, Disagreement: disagreement}
}

// Disagreement is the absolute gap between the semantic and numeric scores.
func Disagreement(outs domain.JudgeOutputs) float64 {
	return math.Abs(outs.Semantic.Score - outs.Numeric.Score)
}

// wrongMetric fires when the numeric judge passes while the semantic judge
// fails by a wide margin: the numbers matched but measured the wrong thing.
func (a *Analyzer) wrongMetric(outs domain.JudgeOutputs) bool {
	numericPasses := outs.Numeric.FailureReason == domain.FailureNone &&
		outs.Numeric.Score >= a.cfg.WrongMetricPassScore
	return numericPasses && outs.Semantic.Score < a.cfg.WrongMetricFailScore
}

// numericOnly reports whether a reported contradiction concerns only numeric
// values. Magnitude and unit or scale mismatches belong to the numeric judge.
func numericOnly(task domain.Task, contra domain.JudgeOutput) bool {
	if len(contra.ContradictionKinds) > 0 {
		all := true
		for _, k := range contra.ContradictionKinds {
			if k != domain.ContradictionKindNumeric {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return interpret.NumericOnlyDivergence(task.GoldAnswer, task.ModelAnswer)
}
