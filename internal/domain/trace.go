package domain

import (
	"fmt"
	"time"
)

// ErrorKindUnrecovered is the call-level taxonomy kind for a judge call that
// still failed after its retry.
const ErrorKindUnrecovered = "unrecovered_judge_error"

// TaxonomyEntry attributes one error kind to one judge.
type TaxonomyEntry struct {
	Judge JudgeName `json:"judge"`
	Kind  string    `json:"kind"`
}

// String renders the entry as judge:kind.
func (e TaxonomyEntry) String() string { return string(e.Judge) + ":" + e.Kind }

// JudgeOutputs groups the three interpreted outputs of one task.
// Each field is a fixed variant; there is no open-ended judge registry.
type JudgeOutputs struct {
	Semantic      JudgeOutput `json:"semantic"`
	Numeric       JudgeOutput `json:"numeric"`
	Contradiction JudgeOutput `json:"contradiction"`
}

// Get returns the output of the named judge.
func (o JudgeOutputs) Get(name JudgeName) (JudgeOutput, bool) {
	switch name {
	case JudgeSemantic:
		return o.Semantic, true
	case JudgeNumeric:
		return o.Numeric, true
	case JudgeContradiction:
		return o.Contradiction, true
	}
	return JudgeOutput{}, false
}

// Validate checks each output.
func (o JudgeOutputs) Validate() error {
	for _, out := range []JudgeOutput{o.Semantic, o.Numeric, o.Contradiction} {
		if err := out.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ScoringConfig holds the fixed weights and thresholds of the hybrid scorer and
// consistency analyzer. It is built once at process start, passed by value, and
// snapshotted into every Trace so final scores can be recomputed offline.
type ScoringConfig struct {
	SemanticWeight        float64 `json:"semantic_weight"          yaml:"semantic_weight"          validate:"min=0,max=1"`
	NumericWeight         float64 `json:"numeric_weight"           yaml:"numeric_weight"           validate:"min=0,max=1"`
	DisagreementThreshold float64 `json:"disagreement_threshold"   yaml:"disagreement_threshold"   validate:"gt=0,max=1"`
	WrongMetricPassScore  float64 `json:"wrong_metric_pass_score"  yaml:"wrong_metric_pass_score"  validate:"min=0,max=1"`
	WrongMetricFailScore  float64 `json:"wrong_metric_fail_score"  yaml:"wrong_metric_fail_score"  validate:"min=0,max=1"`
	ConsistencyPenalty    float64 `json:"consistency_penalty"      yaml:"consistency_penalty"      validate:"min=0,max=1"`
	ContradictionPenalty  float64 `json:"contradiction_penalty"    yaml:"contradiction_penalty"    validate:"min=0,max=1"`
	HedgingPenalty        float64 `json:"hedging_penalty"          yaml:"hedging_penalty"          validate:"min=0,max=1"`
	NumericRelTolerance   float64 `json:"numeric_rel_tolerance"    yaml:"numeric_rel_tolerance"    validate:"min=0,max=1"`
}

// Default scoring constants. Semantic and numeric agreement are weighted
// equally: neither signal is more trustworthy than the other on its own.
const (
	DefaultSemanticWeight        = 0.5
	DefaultNumericWeight         = 0.5
	DefaultDisagreementThreshold = 0.3
	DefaultWrongMetricPassScore  = 0.8
	DefaultWrongMetricFailScore  = 0.3
	DefaultConsistencyPenalty    = 0.2
	DefaultContradictionPenalty  = 0.5
	DefaultHedgingPenalty        = 0.1
	DefaultNumericRelTolerance   = 0.01
)

// DefaultScoringConfig returns the production scoring configuration.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		SemanticWeight:        DefaultSemanticWeight,
		NumericWeight:         DefaultNumericWeight,
		DisagreementThreshold: DefaultDisagreementThreshold,
		WrongMetricPassScore:  DefaultWrongMetricPassScore,
		WrongMetricFailScore:  DefaultWrongMetricFailScore,
		ConsistencyPenalty:    DefaultConsistencyPenalty,
		ContradictionPenalty:  DefaultContradictionPenalty,
		HedgingPenalty:        DefaultHedgingPenalty,
		NumericRelTolerance:   DefaultNumericRelTolerance,
	}
}

// Validate checks weight ranges and that the base weights sum to one.
func (c ScoringConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScoringConfig, err)
	}
	const eps = 1e-9
	if sum := c.SemanticWeight + c.NumericWeight; sum < 1-eps || sum > 1+eps {
		return fmt.Errorf("%w: semantic_weight + numeric_weight = %.4f, want 1",
			ErrInvalidScoringConfig, sum)
	}
	if c.WrongMetricFailScore >= c.WrongMetricPassScore {
		return fmt.Errorf("%w: wrong_metric_fail_score must be below wrong_metric_pass_score",
			ErrInvalidScoringConfig)
	}
	return nil
}

// InputFor returns the payload sent to judge name for in. The numeric judge
// also receives NumericRelTolerance.
func (c ScoringConfig) InputFor(name JudgeName, in JudgeInput) JudgeInput {
	if name.NumericFamily() {
		tol := c.NumericRelTolerance
		in.Tolerance = &tol
	}
	return in
}

// Trace is the append-only record of one task evaluation: the task, every judge
// call, the interpreted outputs and the score. It is written exactly once and
// never mutated afterwards.
type Trace struct {
	RunID         string          `json:"run_id"         validate:"required,runid"`
	TaskID        string          `json:"task_id"        validate:"required"`
	RecordedAt    time.Time       `json:"recorded_at"`
	Task          Task            `json:"task"`
	JudgeCalls    []JudgeCall     `json:"judge_calls"    validate:"len=3,dive"`
	Outputs       JudgeOutputs    `json:"outputs"`
	Score         ScoreResult     `json:"score"`
	ErrorTaxonomy []TaxonomyEntry `json:"error_taxonomy"`
	ScoringConfig ScoringConfig   `json:"scoring_config"`
}

// Validate checks the structural integrity of the trace.
func (t *Trace) Validate() error {
	if err := ValidateRunID(t.RunID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTrace, err)
	}
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTrace, err)
	}
	if t.TaskID != t.Task.ID {
		return fmt.Errorf("%w: task_id %q does not match task %q", ErrInvalidTrace, t.TaskID, t.Task.ID)
	}
	if err := t.Outputs.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTrace, err)
	}
	return t.Score.Validate()
}

// Call returns the recorded call of the named judge.
func (t *Trace) Call(name JudgeName) (JudgeCall, bool) {
	for _, c := range t.JudgeCalls {
		if c.Judge == name {
			return c, true
		}
	}
	return JudgeCall{}, false
}

// BuildTaxonomy lists the error kinds of one task evaluation: the judge-level
// failure reason of every output that is not none, and an unrecovered entry for
// every degraded call.
func BuildTaxonomy(calls []JudgeCall, outputs JudgeOutputs) []TaxonomyEntry {
	var entries []TaxonomyEntry
	for _, name := range Judges() {
		out, _ := outputs.Get(name)
		if out.FailureReason != FailureNone && out.FailureReason != "" {
			entries = append(entries, TaxonomyEntry{Judge: name, Kind: string(out.FailureReason)})
		}
	}
	for _, c := range calls {
		if c.Unrecovered() {
			entries = append(entries, TaxonomyEntry{Judge: c.Judge, Kind: ErrorKindUnrecovered})
		}
	}
	return entries
}

// RunManifest summarizes one evaluation run for reproducibility.
type RunManifest struct {
	RunID          string               `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	DatasetPath    string               `json:"dataset_path,omitempty"`
	JudgeVersions  map[JudgeName]string `json:"judge_versions"`
	ScoringConfig  ScoringConfig        `json:"scoring_config"`
	TotalTasks     int                  `json:"total_tasks"`
	CompletedTasks int                  `json:"completed_tasks"`
	FailedTasks    int                  `json:"failed_tasks"`

	// CanonicalTasks and AdversarialTasks split TotalTasks by task source.
	CanonicalTasks   int `json:"canonical_tasks"`
	AdversarialTasks int `json:"adversarial_tasks"`
}

// Finish records the end of the run.
func (m *RunManifest) Finish(at time.Time, completed, failed int) {
	m.FinishedAt = at
	m.CompletedTasks = completed
	m.FailedTasks = failed
}
