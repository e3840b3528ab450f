package domain //nolint:testpackage // Need access to unexported validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlags_ListIsCanonical(t *testing.T) {
	f := NewFlags(FlagHedgedAnswer, FlagNumericError, FlagHighDisagreement)
	assert.Equal(t, []ConsistencyFlag{FlagHighDisagreement, FlagNumericError, FlagHedgedAnswer}, f.List())
	assert.True(t, f.Has(FlagNumericError))
	assert.False(t, f.Has(FlagWrongMetric))

	var empty Flags
	assert.Empty(t, empty.List())
	assert.NotNil(t, empty.List())
}

func TestScoreResult(t *testing.T) {
	r := ScoreResult{
		BaseScore:            0.9,
		ConsistencyPenalty:   0.2,
		ContradictionPenalty: 0.5,
		HedgingPenalty:       0.1,
		FinalScore:           0.1,
		Flags:                []ConsistencyFlag{FlagContradictionViolated},
	}
	assert.InDelta(t, 0.8, r.TotalPenalty(), 1e-12)
	assert.True(t, r.HasFlag(FlagContradictionViolated))
	assert.False(t, r.HasFlag(FlagHedgedAnswer))
	assert.NoError(t, r.Validate())

	r.FinalScore = 1.5
	assert.ErrorIs(t, r.Validate(), ErrInvalidScore)
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.3, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp01(tt.in))
	}
}
