// Package report aggregates the traces of one run into summary statistics.
package report

import (
	"math"
	"slices"
	"sort"

	"github.com/ahrav/finjudge/internal/domain"
)

// ScoreStats describes a distribution of final scores.
type ScoreStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// GroupStats summarizes the tasks sharing one difficulty or question type.
type GroupStats struct {
	ScoreStats
	ContradictionRate float64 `json:"contradiction_rate"`
	DisagreementRate  float64 `json:"disagreement_rate"`
	ErrorCount        int     `json:"error_count"`
}

// JudgeStats summarizes the calls made to one judge.
type JudgeStats struct {
	Calls        int     `json:"calls"`
	Unrecovered  int     `json:"unrecovered"`
	Retried      int     `json:"retried"`
	Bypassed     int     `json:"bypassed"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}

// TopDisagreementCount is the number of tasks listed in TopDisagreements.
const TopDisagreementCount = 3

// Disagreement describes one task on which the semantic and numeric judges
// diverged.
type Disagreement struct {
	TaskID         string                   `json:"task_id"`
	Difficulty     string                   `json:"difficulty"`
	QuestionType   string                   `json:"question_type"`
	ExpertTimeMins float64                  `json:"expert_time_mins"`
	SemanticScore  float64                  `json:"semantic_score"`
	NumericScore   float64                  `json:"numeric_score"`
	AbsDiff        float64                  `json:"abs_diff"`
	FinalScore     float64                  `json:"final_score"`
	Flags          []domain.ConsistencyFlag `json:"flags"`
}

// Report is the aggregated view of one run.
type Report struct {
	RunID   string     `json:"run_id"`
	Overall ScoreStats `json:"overall"`

	AvgSemanticScore float64 `json:"avg_semantic_score"`
	AvgNumericScore  float64 `json:"avg_numeric_score"`

	ContradictionRate float64 `json:"contradiction_rate"`
	DisagreementRate  float64 `json:"disagreement_rate"`

	ByDifficulty   map[string]GroupStats `json:"by_difficulty"`
	ByQuestionType map[string]GroupStats `json:"by_question_type"`
	// BySource splits canonical from adversarial tasks.
	BySource map[string]GroupStats `json:"by_source"`

	// ExpertTimeCorrelation is the Pearson correlation between expert time and
	// final score per difficulty, over tasks with a recorded expert time.
	// Difficulties where it is undefined are absent.
	ExpertTimeCorrelation map[string]float64 `json:"expert_time_correlation"`
	TopDisagreements      []Disagreement     `json:"top_disagreements"`

	// ErrorCounts is keyed by judge then by error kind.
	ErrorCounts map[domain.JudgeName]map[string]int `json:"error_counts"`
	TotalErrors int                                 `json:"total_errors"`

	FlagCounts map[domain.ConsistencyFlag]int `json:"flag_counts"`
	Judges     map[domain.JudgeName]JudgeStats `json:"judges"`
}

// Build computes the report of runID from its traces. An empty trace list
// yields a report with zero counts.
func Build(runID string, traces []*domain.Trace) Report {
	r := Report{
		RunID:          runID,
		ByDifficulty:   map[string]GroupStats{},
		ByQuestionType: map[string]GroupStats{},
		BySource:       map[string]GroupStats{},

		ExpertTimeCorrelation: map[string]float64{},
		TopDisagreements:      []Disagreement{},

		ErrorCounts:    map[domain.JudgeName]map[string]int{},
		FlagCounts:     map[domain.ConsistencyFlag]int{},
		Judges:         map[domain.JudgeName]JudgeStats{},
	}
	if len(traces) == 0 {
		return r
	}

	var semantic, numeric float64
	for _, t := range traces {
		semantic += t.Outputs.Semantic.Score
		numeric += t.Outputs.Numeric.Score
		for _, f := range t.Score.Flags {
			r.FlagCounts[f]++
		}
		for _, e := range t.ErrorTaxonomy {
			if r.ErrorCounts[e.Judge] == nil {
				r.ErrorCounts[e.Judge] = map[string]int{}
			}
			r.ErrorCounts[e.Judge][e.Kind]++
			r.TotalErrors++
		}
	}
	n := float64(len(traces))
	r.AvgSemanticScore = semantic / n
	r.AvgNumericScore = numeric / n

	overall := group(traces)
	r.Overall = overall.ScoreStats
	r.ContradictionRate = overall.ContradictionRate
	r.DisagreementRate = overall.DisagreementRate

	for key, ts := range partition(traces, func(t *domain.Trace) string { return t.Task.Difficulty() }) {
		r.ByDifficulty[key] = group(ts)
	}
	for key, ts := range partition(traces, questionType) {
		r.ByQuestionType[key] = group(ts)
	}
	for key, ts := range partition(traces, func(t *domain.Trace) string { return t.Task.Track() }) {
		r.BySource[key] = group(ts)
	}
	for key, ts := range partition(traces, func(t *domain.Trace) string { return t.Task.Difficulty() }) {
		if c, ok := expertTimeCorrelation(ts); ok {
			r.ExpertTimeCorrelation[key] = c
		}
	}
	r.TopDisagreements = topDisagreements(traces, TopDisagreementCount)
	r.Judges = judgeStats(traces)
	return r
}

func questionType(t *domain.Trace) string {
	if t.Task.QuestionType == "" {
		return domain.DifficultyUnknown
	}
	return t.Task.QuestionType
}

func partition(traces []*domain.Trace, key func(*domain.Trace) string) map[string][]*domain.Trace {
	out := map[string][]*domain.Trace{}
	for _, t := range traces {
		k := key(t)
		out[k] = append(out[k], t)
	}
	return out
}

func group(traces []*domain.Trace) GroupStats {
	scores := make([]float64, 0, len(traces))
	var contradictions, disagreements, errs int
	for _, t := range traces {
		scores = append(scores, t.Score.FinalScore)
		if t.Score.HasFlag(domain.FlagContradictionViolated) {
			contradictions++
		}
		if t.Score.HasFlag(domain.FlagHighDisagreement) {
			disagreements++
		}
		errs += len(t.ErrorTaxonomy)
	}
	n := float64(len(traces))
	return GroupStats{
		ScoreStats:        Describe(scores),
		ContradictionRate: float64(contradictions) / n,
		DisagreementRate:  float64(disagreements) / n,
		ErrorCount:        errs,
	}
}

// Describe returns count, mean, population standard deviation, min and max.
func Describe(xs []float64) ScoreStats {
	if len(xs) == 0 {
		return ScoreStats{}
	}
	s := ScoreStats{Count: len(xs), Min: xs[0], Max: xs[0]}
	var sum float64
	for _, x := range xs {
		sum += x
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
	}
	s.Mean = sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - s.Mean
		sq += d * d
	}
	s.Std = math.Sqrt(sq / float64(len(xs)))
	return s
}

func expertTimeCorrelation(traces []*domain.Trace) (float64, bool) {
	var times, scores []float64
	for _, t := range traces {
		if t.Task.ExpertTimeMins > 0 {
			times = append(times, t.Task.ExpertTimeMins)
			scores = append(scores, t.Score.FinalScore)
		}
	}
	return Pearson(times, scores)
}

// Pearson returns the correlation coefficient of xs and ys. It is undefined,
// and ok is false, for fewer than two pairs or when either side is constant.
func Pearson(xs, ys []float64) (r float64, ok bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	mx, my := Describe(xs).Mean, Describe(ys).Mean
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

// topDisagreements ranks traces by the gap between the semantic and numeric
// scores. Tasks flagged wrong_metric or numeric_error count double. Ties keep
// trace order.
func topDisagreements(traces []*domain.Trace, n int) []Disagreement {
	type ranked struct {
		d    Disagreement
		rank float64
	}
	all := make([]ranked, 0, len(traces))
	for _, t := range traces {
		diff := math.Abs(t.Outputs.Semantic.Score - t.Outputs.Numeric.Score)
		rank := diff
		if t.Score.HasFlag(domain.FlagWrongMetric) || t.Score.HasFlag(domain.FlagNumericError) {
			rank *= 2
		}
		all = append(all, ranked{rank: rank, d: Disagreement{
			TaskID:         t.TaskID,
			Difficulty:     t.Task.Difficulty(),
			QuestionType:   questionType(t),
			ExpertTimeMins: t.Task.ExpertTimeMins,
			SemanticScore:  t.Outputs.Semantic.Score,
			NumericScore:   t.Outputs.Numeric.Score,
			AbsDiff:        diff,
			FinalScore:     t.Score.FinalScore,
			Flags:          t.Score.Flags,
		}})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].rank > all[j].rank })
	if len(all) > n {
		all = all[:n]
	}
	out := make([]Disagreement, len(all))
	for i, r := range all {
		out[i] = r.d
	}
	return out
}

func judgeStats(traces []*domain.Trace) map[domain.JudgeName]JudgeStats {
	latencies := map[domain.JudgeName][]float64{}
	out := map[domain.JudgeName]JudgeStats{}
	for _, t := range traces {
		for _, c := range t.JudgeCalls {
			st := out[c.Judge]
			st.Calls++
			if c.Unrecovered() {
				st.Unrecovered++
			}
			if c.Attempts > 1 {
				st.Retried++
			}
			if c.Bypassed {
				st.Bypassed++
			}
			out[c.Judge] = st
			latencies[c.Judge] = append(latencies[c.Judge], float64(c.LatencyMs))
		}
	}
	for name, ls := range latencies {
		st := out[name]
		st.AvgLatencyMs = Describe(ls).Mean
		st.P95LatencyMs = Percentile(ls, 95)
		out[name] = st
	}
	return out
}

// Percentile returns the p-th percentile of xs using linear interpolation
// between closest ranks. xs is not modified.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := slices.Clone(xs)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
