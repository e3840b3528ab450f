package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JudgeName identifies one of the fixed judge capabilities.
// The set is closed: every task is evaluated by exactly these three judges.
type JudgeName string

const (
	// JudgeSemantic scores whether the model answer means the same as the gold answer.
	JudgeSemantic JudgeName = "semantic_equivalence"

	// JudgeNumeric scores whether the numbers in the model answer match the gold
	// answer within tolerance.
	JudgeNumeric JudgeName = "numeric_tolerance"

	// JudgeContradiction reports whether the model answer logically contradicts the
	// gold answer.
	JudgeContradiction JudgeName = "contradiction"
)

// Judges lists every judge in evaluation order. The order only matters for
// stable trace layout; judges are independent of one another.
func Judges() []JudgeName {
	return []JudgeName{JudgeSemantic, JudgeNumeric, JudgeContradiction}
}

// Valid reports whether n is one of the known judges.
func (n JudgeName) Valid() bool {
	switch n {
	case JudgeSemantic, JudgeNumeric, JudgeContradiction:
		return true
	}
	return false
}

// NumericFamily reports whether n belongs to the numeric judge family, which
// shares the extraction/alignment/tolerance failure model.
func (n JudgeName) NumericFamily() bool { return n == JudgeNumeric }

// ParseJudgeName converts s into a JudgeName, rejecting unknown names.
func ParseJudgeName(s string) (JudgeName, error) {
	n := JudgeName(s)
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJudge, s)
	}
	return n, nil
}

// FailureReason explains why a judge score is low or zero.
// It is distinct from the score itself so that a low score is always explainable.
type FailureReason string

const (
	FailureNone             FailureReason = "none"
	FailureExtractionFailed FailureReason = "extraction_failed"
	FailureAlignmentFailed  FailureReason = "alignment_failed"
	FailureToleranceFailed  FailureReason = "tolerance_failed"
	FailureParseError       FailureReason = "parse_error"
)

// Valid reports whether r is a known failure reason.
func (r FailureReason) Valid() bool {
	switch r {
	case FailureNone, FailureExtractionFailed, FailureAlignmentFailed,
		FailureToleranceFailed, FailureParseError:
		return true
	}
	return false
}

// ContradictionKindNumeric marks a contradiction that concerns only numeric values.
// Such divergences belong to the numeric judge and never count as contradictions.
const ContradictionKindNumeric = "numeric"

// JudgeOutput is the canonical, interpreted result of one judge for one task.
//
// Invariant: Confidence == 0 if and only if FailureReason == FailureExtractionFailed.
type JudgeOutput struct {
	Judge         JudgeName     `json:"judge"          validate:"required"`
	Score         float64       `json:"score"          validate:"min=0,max=1"`
	Confidence    float64       `json:"confidence"     validate:"min=0,max=1"`
	FailureReason FailureReason `json:"failure_reason" validate:"required,oneof=none extraction_failed alignment_failed tolerance_failed parse_error"`

	// Violated is only meaningful for the contradiction judge.
	Violated bool `json:"violated,omitempty"`

	// ContradictionKinds lists the categories the contradiction judge reported
	// (numeric, directional, factual, ...). Empty for the other judges.
	ContradictionKinds []string `json:"contradiction_kinds,omitempty"`

	Reason string `json:"reason"`
}

// Validate checks ranges and the confidence/extraction invariant.
func (o JudgeOutput) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJudgeOutput, err)
	}
	if !o.Judge.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidJudgeOutput, ErrUnknownJudge, o.Judge)
	}
	zeroConf := o.Confidence == 0
	extractionFailed := o.FailureReason == FailureExtractionFailed
	if zeroConf != extractionFailed {
		return fmt.Errorf("%w: confidence %.3f with failure_reason %s",
			ErrConfidenceInvariant, o.Confidence, o.FailureReason)
	}
	if o.Violated && o.Judge != JudgeContradiction {
		return fmt.Errorf("%w: violated set on %s", ErrInvalidJudgeOutput, o.Judge)
	}
	return nil
}

// JudgeInput is the payload sent to every judge capability.
// All text fields may be empty but are always present on the wire.
type JudgeInput struct {
	Question    string       `json:"question"`
	GoldAnswer  string       `json:"gold_answer"`
	ModelAnswer string       `json:"model_answer"`
	Rubric      []RubricItem `json:"rubric"`

	// Tolerance is the relative tolerance the numeric judge applies when
	// comparing figures. It is unset for every other judge.
	Tolerance *float64 `json:"tolerance,omitempty"`
}

// JudgeCall records one invocation of one judge for one task.
// A JudgeCall is immutable once recorded and is owned by the task's Trace.
type JudgeCall struct {
	Judge         JudgeName       `json:"judge_name"     validate:"required"`
	Version       string          `json:"version"`
	PromptHash    string          `json:"prompt_hash"    validate:"required"`
	InputPayload  JudgeInput      `json:"input_payload"`
	OutputPayload json.RawMessage `json:"output_payload" validate:"required"`
	StartedAt     time.Time       `json:"started_at"`
	LatencyMs     int64           `json:"latency_ms"     validate:"min=0"`

	// Attempts counts transport attempts: 1 on first-try success, 2 after a retry.
	// Bypassed calls never reach the transport and record 0.
	Attempts int `json:"attempts" validate:"min=0,max=2"`

	// Bypassed is set when the call was short-circuited by an exact textual match.
	Bypassed bool `json:"bypassed,omitempty"`

	// Degraded is set when the output was synthesized after the retry was exhausted
	// or the task deadline expired. Only degraded calls are unrecovered errors.
	Degraded bool `json:"degraded,omitempty"`

	// Error holds the last failure seen for a degraded call. Nil otherwise.
	Error *string `json:"error"`
}

// Unrecovered reports whether this call ended in an unrecovered judge error.
func (c JudgeCall) Unrecovered() bool { return c.Degraded }
