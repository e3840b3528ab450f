package domain //nolint:testpackage // Need access to unexported validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgeName(t *testing.T) {
	for _, name := range Judges() {
		got, err := ParseJudgeName(string(name))
		require.NoError(t, err)
		assert.Equal(t, name, got)
	}

	_, err := ParseJudgeName("tone")
	assert.ErrorIs(t, err, ErrUnknownJudge)
}

func TestJudgeName_NumericFamily(t *testing.T) {
	assert.True(t, JudgeNumeric.NumericFamily())
	assert.False(t, JudgeSemantic.NumericFamily())
	assert.False(t, JudgeContradiction.NumericFamily())
}

func TestJudgeOutput_Validate(t *testing.T) {
	valid := JudgeOutput{Judge: JudgeNumeric, Score: 0.5, Confidence: 0.8, FailureReason: FailureToleranceFailed}

	tests := []struct {
		name    string
		modify  func(*JudgeOutput)
		wantErr error
	}{
		{name: "valid", modify: func(*JudgeOutput) {}},
		{
			name:    "score above one",
			modify:  func(o *JudgeOutput) { o.Score = 1.2 },
			wantErr: ErrInvalidJudgeOutput,
		},
		{
			name:    "negative confidence",
			modify:  func(o *JudgeOutput) { o.Confidence = -0.1 },
			wantErr: ErrInvalidJudgeOutput,
		},
		{
			name:    "unknown failure reason",
			modify:  func(o *JudgeOutput) { o.FailureReason = "timeout" },
			wantErr: ErrInvalidJudgeOutput,
		},
		{
			name:    "unknown judge",
			modify:  func(o *JudgeOutput) { o.Judge = "tone" },
			wantErr: ErrUnknownJudge,
		},
		{
			name: "zero confidence with extraction failure",
			modify: func(o *JudgeOutput) {
				o.Score, o.Confidence, o.FailureReason = 0, 0, FailureExtractionFailed
			},
		},
		{
			name:    "zero confidence without extraction failure",
			modify:  func(o *JudgeOutput) { o.Confidence = 0 },
			wantErr: ErrConfidenceInvariant,
		},
		{
			name:    "extraction failure with confidence",
			modify:  func(o *JudgeOutput) { o.FailureReason = FailureExtractionFailed },
			wantErr: ErrConfidenceInvariant,
		},
		{
			name:    "violated outside contradiction judge",
			modify:  func(o *JudgeOutput) { o.Violated = true },
			wantErr: ErrInvalidJudgeOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := valid
			tt.modify(&out)
			err := out.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFailureReason_Valid(t *testing.T) {
	for _, r := range []FailureReason{
		FailureNone, FailureExtractionFailed, FailureAlignmentFailed,
		FailureToleranceFailed, FailureParseError,
	} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, FailureReason("").Valid())
	assert.False(t, FailureReason("timeout").Valid())
}
