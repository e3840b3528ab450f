package domain

import "fmt"

// Difficulty levels used by the canonical dataset.
const (
	DifficultyEasy    = "Easy"
	DifficultyMedium  = "Medium"
	DifficultyHard    = "Hard"
	DifficultyUnknown = "Unknown"
)

// Task sources.
const (
	SourceCanonical   = "canonical"
	SourceAdversarial = "adversarial"
)

// RubricOperatorContradiction marks rubric items the contradiction judge checks.
const RubricOperatorContradiction = "contradiction"

// RubricItem is one evaluation criterion attached to a task.
type RubricItem struct {
	Operator string `json:"operator" yaml:"operator"`
	Criteria string `json:"criteria" yaml:"criteria"`
}

// Task is a single evaluation input. Tasks are created when the dataset is
// loaded and are never mutated afterwards.
type Task struct {
	ID              string       `json:"id"               validate:"required"`
	Question        string       `json:"question"`
	GoldAnswer      string       `json:"gold_answer"`
	ModelAnswer     string       `json:"model_answer"`
	Rubric          []RubricItem `json:"rubric"`
	DifficultyLevel string       `json:"difficulty_level"`
	QuestionType    string       `json:"question_type"`
	ExpertTimeMins  float64      `json:"expert_time_mins" validate:"min=0"`

	// Source is canonical or adversarial. Adversarial tasks carry the
	// transformation applied to the gold answer and the outcome it should produce.
	Source             string `json:"source,omitempty"              validate:"omitempty,oneof=canonical adversarial"`
	TransformationType string `json:"transformation_type,omitempty"`
	ExpectedOutcome    string `json:"expected_outcome,omitempty"`
}

// Validate checks the structural requirements of a task.
func (t Task) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return nil
}

// Difficulty returns the task difficulty, defaulting to DifficultyUnknown.
func (t Task) Difficulty() string {
	if t.DifficultyLevel == "" {
		return DifficultyUnknown
	}
	return t.DifficultyLevel
}

// Track returns the task source, defaulting to SourceCanonical.
func (t Task) Track() string {
	if t.Source == "" {
		return SourceCanonical
	}
	return t.Source
}

// JudgeInput builds the payload sent to every judge for this task.
// The rubric is copied so the task stays immutable.
func (t Task) JudgeInput() JudgeInput {
	rubric := make([]RubricItem, len(t.Rubric))
	copy(rubric, t.Rubric)
	return JudgeInput{
		Question:    t.Question,
		GoldAnswer:  t.GoldAnswer,
		ModelAnswer: t.ModelAnswer,
		Rubric:      rubric,
	}
}
