package evaluation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/report"
)

// Stability defaults.
const (
	DefaultStabilityRepeats   = 5
	DefaultStabilityThreshold = 0.05
)

// StabilityOptions describes a repeated evaluation of the same tasks.
type StabilityOptions struct {
	// RunID is the base id. Repetition n records under "<RunID>-r<n>", so the
	// derived ids must also pass domain.ValidateRunID. A random UUID is used
	// when empty.
	RunID string

	// Repeats is the number of evaluations per task.
	Repeats int

	// Threshold is the largest final-score standard deviation of a stable task.
	Threshold float64

	DatasetPath string
}

// TaskStability is the spread of one task's final score across repetitions.
type TaskStability struct {
	TaskID     string    `json:"task_id"`
	Difficulty string    `json:"difficulty"`
	Scores     []float64 `json:"scores"`
	report.ScoreStats
	Stable bool `json:"stable"`
}

// StabilityReport summarizes a repeated evaluation.
type StabilityReport struct {
	RunID     string   `json:"run_id"`
	RunIDs    []string `json:"run_ids"`
	Repeats   int      `json:"repeats"`
	Threshold float64  `json:"threshold"`

	Tasks []TaskStability `json:"tasks"`

	// StableFraction is the share of tasks whose scores stayed within
	// Threshold in every repetition.
	StableFraction float64  `json:"stable_fraction"`
	AvgStd         float64  `json:"avg_std"`
	MaxStd         float64  `json:"max_std"`
	UnstableTasks  []string `json:"unstable_tasks"`
}

// Stability evaluates every task opts.Repeats times, each repetition as its own
// run, and reports how much each final score moved. A task is stable when it
// was scored in every repetition and its population standard deviation is
// below the threshold. A preflight failure or cancellation aborts the whole
// measurement.
func (r *Runner) Stability(ctx context.Context, tasks []domain.Task, opts StabilityOptions) (*StabilityReport, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Repeats < 1 {
		opts.Repeats = DefaultStabilityRepeats
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultStabilityThreshold
	}

	rep := &StabilityReport{
		RunID:         opts.RunID,
		Repeats:       opts.Repeats,
		Threshold:     opts.Threshold,
		Tasks:         make([]TaskStability, len(tasks)),
		UnstableTasks: []string{},
	}
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, dup := index[t.ID]; !dup {
			index[t.ID] = i
		}
		rep.Tasks[i] = TaskStability{TaskID: t.ID, Difficulty: t.Difficulty(), Scores: []float64{}}
	}

	for n := 1; n <= opts.Repeats; n++ {
		runID := fmt.Sprintf("%s-r%d", opts.RunID, n)
		res, err := r.Run(ctx, tasks, RunOptions{RunID: runID, DatasetPath: opts.DatasetPath})
		if err != nil {
			return nil, fmt.Errorf("stability repetition %d: %w", n, err)
		}
		rep.RunIDs = append(rep.RunIDs, runID)
		for _, t := range res.Traces {
			ts := &rep.Tasks[index[t.TaskID]]
			ts.Scores = append(ts.Scores, t.Score.FinalScore)
		}
	}

	var stable int
	var sumStd float64
	for i := range rep.Tasks {
		ts := &rep.Tasks[i]
		ts.ScoreStats = report.Describe(ts.Scores)
		ts.Stable = len(ts.Scores) == opts.Repeats && ts.Std < opts.Threshold
		if ts.Stable {
			stable++
		} else {
			rep.UnstableTasks = append(rep.UnstableTasks, ts.TaskID)
		}
		sumStd += ts.Std
		rep.MaxStd = max(rep.MaxStd, ts.Std)
	}
	if len(rep.Tasks) > 0 {
		rep.StableFraction = float64(stable) / float64(len(rep.Tasks))
		rep.AvgStd = sumStd / float64(len(rep.Tasks))
	}
	r.logger.InfoContext(ctx, "stability measured",
		"run_id", opts.RunID, "repeats", opts.Repeats,
		"stable_fraction", rep.StableFraction, "unstable", len(rep.UnstableTasks))
	return rep, nil
}
