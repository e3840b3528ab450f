// Package scoring implements the hybrid scorer: a weighted base score from the
// semantic and numeric judges minus fixed penalties for disagreement,
// contradiction and hedging. Scoring is a pure function of the judge outputs
// and an immutable ScoringConfig, so any stored trace can be replayed exactly.
package scoring

import (
	"fmt"

	"github.com/ahrav/finjudge/internal/consistency"
	"github.com/ahrav/finjudge/internal/domain"
)

// Scorer computes final scores under one fixed configuration.
type Scorer struct {
	cfg      domain.ScoringConfig
	analyzer *consistency.Analyzer
}

// NewScorer validates cfg and creates a scorer bound to it.
func NewScorer(cfg domain.ScoringConfig) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new scorer: %w", err)
	}
	return &Scorer{cfg: cfg, analyzer: consistency.NewAnalyzer(cfg)}, nil
}

// Config returns the scorer's configuration by value.
func (s *Scorer) Config() domain.ScoringConfig { return s.cfg }

// Score derives flags for task and computes its ScoreResult.
func (s *Scorer) Score(task domain.Task, outs domain.JudgeOutputs) domain.ScoreResult {
	analysis := s.analyzer.Analyze(task, outs)
	return combine(s.cfg, outs, analysis)
}

// Compute scores task under cfg without constructing a Scorer. cfg is assumed
// valid; Replay validates trace configs before calling it.
func Compute(cfg domain.ScoringConfig, task domain.Task, outs domain.JudgeOutputs) domain.ScoreResult {
	analysis := consistency.NewAnalyzer(cfg).Analyze(task, outs)
	return combine(cfg, outs, analysis)
}

// combine applies the base weights and the deductions in fixed order:
// consistency, contradiction, hedging. Each deduction is capped at the running
// total so it never drops below zero, and the recorded amount is what was
// actually deducted.
func combine(cfg domain.ScoringConfig, outs domain.JudgeOutputs, analysis consistency.Result) domain.ScoreResult {
	base := domain.Clamp01(cfg.SemanticWeight*outs.Semantic.Score + cfg.NumericWeight*outs.Numeric.Score)
	running := base

	deduct := func(flag domain.ConsistencyFlag, penalty float64) float64 {
		if !analysis.Flags.Has(flag) {
			return 0
		}
		applied := min(penalty, running)
		running -= applied
		return applied
	}

	result := domain.ScoreResult{
		BaseScore:    base,
		Disagreement: domain.Clamp01(analysis.Disagreement),
	}
	result.ConsistencyPenalty = deduct(domain.FlagHighDisagreement, cfg.ConsistencyPenalty)
	result.ContradictionPenalty = deduct(domain.FlagContradictionViolated, cfg.ContradictionPenalty)
	result.HedgingPenalty = deduct(domain.FlagHedgedAnswer, cfg.HedgingPenalty)
	result.FinalScore = domain.Clamp01(running)
	result.Flags = analysis.Flags.List()
	return result
}
