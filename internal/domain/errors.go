package domain

import "errors"

// ErrUnknownJudge indicates a judge name outside the fixed judge set.
var ErrUnknownJudge = errors.New("unknown judge")

// ErrInvalidTask indicates that a task is structurally invalid.
var ErrInvalidTask = errors.New("invalid task")

// ErrInvalidJudgeOutput indicates that an interpreted judge output is out of range.
var ErrInvalidJudgeOutput = errors.New("invalid judge output")

// ErrConfidenceInvariant indicates a judge output whose confidence disagrees with
// its failure reason: zero confidence is reserved for extraction failures.
var ErrConfidenceInvariant = errors.New("confidence/failure_reason invariant violated")

// ErrInvalidScore indicates that a score result contains out-of-range values.
var ErrInvalidScore = errors.New("invalid score result")

// ErrInvalidScoringConfig indicates that scorer weights or thresholds are invalid.
var ErrInvalidScoringConfig = errors.New("invalid scoring configuration")

// ErrInvalidTrace indicates that a trace is structurally invalid.
var ErrInvalidTrace = errors.New("invalid trace")

// ErrInvalidRunID indicates a run id that cannot safely key a trace.
var ErrInvalidRunID = errors.New("invalid run id")
