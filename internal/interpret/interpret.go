// Package interpret turns recorded judge calls into canonical JudgeOutputs.
// It is the single place the confidence/failure semantic model is enforced;
// judges are not trusted to apply it themselves.
package interpret

import (
	"fmt"

	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/judge"
)

const (
	// minFailureConfidence floors the confidence of alignment and tolerance
	// failures, which are confident findings rather than missing data.
	minFailureConfidence = 0.6

	// minConfidence keeps non-extraction outputs strictly above zero confidence.
	minConfidence = 0.01

	// parseErrorConfidence is the confidence of a malformed numeric response.
	parseErrorConfidence = 0.5

	// maxAlignmentScore caps the score of an alignment failure.
	maxAlignmentScore = 0.9
)

// Interpret normalizes one judge call into its canonical output. in is the
// judge input the call was made with; the numeric rules depend on whether the
// gold and model answers carry numbers at all.
func Interpret(call domain.JudgeCall, in domain.JudgeInput) domain.JudgeOutput {
	p, err := judge.DecodePayload(call.OutputPayload)
	if err != nil {
		p, _ = judge.DecodePayload(judge.DegradedPayload(call.Judge, err.Error()))
	}

	var out domain.JudgeOutput
	switch call.Judge {
	case domain.JudgeNumeric:
		out = interpretNumeric(call, p, in)
	case domain.JudgeContradiction:
		out = interpretContradiction(p)
	default:
		out = interpretSemantic(p, in)
	}
	out.Judge = call.Judge
	return enforceInvariant(out)
}

// InterpretAll interprets the three calls of one task.
func InterpretAll(calls []domain.JudgeCall, in domain.JudgeInput) (domain.JudgeOutputs, error) {
	var outs domain.JudgeOutputs
	seen := make(map[domain.JudgeName]bool, 3)
	for _, c := range calls {
		out := Interpret(c, in)
		switch c.Judge {
		case domain.JudgeSemantic:
			outs.Semantic = out
		case domain.JudgeNumeric:
			outs.Numeric = out
		case domain.JudgeContradiction:
			outs.Contradiction = out
		default:
			return domain.JudgeOutputs{}, fmt.Errorf("%w: %q", domain.ErrUnknownJudge, c.Judge)
		}
		seen[c.Judge] = true
	}
	for _, n := range domain.Judges() {
		if !seen[n] {
			return domain.JudgeOutputs{}, fmt.Errorf("%w: missing call for %s", domain.ErrInvalidJudgeOutput, n)
		}
	}
	return outs, nil
}

func interpretSemantic(p judge.Payload, in domain.JudgeInput) domain.JudgeOutput {
	if ExactMatch(in.GoldAnswer, in.ModelAnswer) {
		return noTarget("identical answers")
	}
	return domain.JudgeOutput{
		Score:         value(p.Score),
		Confidence:    value(p.Confidence),
		FailureReason: reasonOrNone(p.FailureReason),
		Reason:        p.Reason,
	}
}

func interpretNumeric(call domain.JudgeCall, p judge.Payload, in domain.JudgeInput) domain.JudgeOutput {
	if call.Bypassed {
		return noTarget("exact textual match")
	}

	goldNum := HasNumericContent(in.GoldAnswer)
	modelNum := HasNumericContent(in.ModelAnswer)
	if !goldNum && !modelNum {
		return noTarget("no numeric values on either side")
	}

	out := domain.JudgeOutput{
		Score:         value(p.Score),
		Confidence:    value(p.Confidence),
		FailureReason: reasonOrNone(p.FailureReason),
		Reason:        p.Reason,
	}
	switch out.FailureReason {
	case domain.FailureExtractionFailed:
		out.Score, out.Confidence = 0, 0
	case domain.FailureParseError:
		if goldNum && modelNum {
			out.Score, out.Confidence = 0, parseErrorConfidence
		} else {
			out.Score, out.Confidence = 0, 0
			out.FailureReason = domain.FailureExtractionFailed
		}
	case domain.FailureAlignmentFailed:
		out.Score = min(out.Score, maxAlignmentScore)
		out.Confidence = max(out.Confidence, minFailureConfidence)
	case domain.FailureToleranceFailed:
		out.Score = 0
		out.Confidence = max(out.Confidence, minFailureConfidence)
	}
	return out
}

func interpretContradiction(p judge.Payload) domain.JudgeOutput {
	out := domain.JudgeOutput{
		Score:              value(p.Score),
		Confidence:         value(p.Confidence),
		FailureReason:      reasonOrNone(p.FailureReason),
		ContradictionKinds: p.ContradictionKinds,
		Reason:             p.Reason,
	}
	if p.Violated != nil {
		out.Violated = *p.Violated
	}
	if out.FailureReason == domain.FailureExtractionFailed {
		out.Violated = false
	}
	return out
}

// noTarget is the output when no divergence is possible: identical answers
// for the semantic judge, no numbers on either side for the numeric judge.
func noTarget(reason string) domain.JudgeOutput {
	return domain.JudgeOutput{
		Score:         1,
		Confidence:    1,
		FailureReason: domain.FailureNone,
		Reason:        reason,
	}
}

// enforceInvariant makes confidence zero exactly when extraction failed.
func enforceInvariant(out domain.JudgeOutput) domain.JudgeOutput {
	out.Score = domain.Clamp01(out.Score)
	out.Confidence = domain.Clamp01(out.Confidence)
	if out.FailureReason == domain.FailureExtractionFailed {
		out.Score, out.Confidence = 0, 0
		return out
	}
	if out.Confidence == 0 {
		out.Confidence = minConfidence
	}
	return out
}

func value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func reasonOrNone(s string) domain.FailureReason {
	r := domain.FailureReason(s)
	if !r.Valid() {
		return domain.FailureNone
	}
	return r
}
