package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/finjudge/internal/domain"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name         string
		judge        domain.JudgeName
		raw          string
		wantErr      bool
		wantRepaired bool
	}{
		{
			name:  "valid semantic without failure reason",
			judge: domain.JudgeSemantic,
			raw:   `{"score": 0.8, "confidence": 0.7, "reason": "same meaning"}`,
		},
		{
			name:  "zero score is present, not missing",
			judge: domain.JudgeNumeric,
			raw:   `{"score": 0, "confidence": 0.8, "failure_reason": "tolerance_failed"}`,
		},
		{
			name:    "numeric requires failure reason",
			judge:   domain.JudgeNumeric,
			raw:     `{"score": 1, "confidence": 1}`,
			wantErr: true,
		},
		{
			name:    "missing score",
			judge:   domain.JudgeSemantic,
			raw:     `{"confidence": 0.5}`,
			wantErr: true,
		},
		{
			name:    "score out of range",
			judge:   domain.JudgeSemantic,
			raw:     `{"score": 1.5, "confidence": 0.5}`,
			wantErr: true,
		},
		{
			name:    "unknown failure reason",
			judge:   domain.JudgeNumeric,
			raw:     `{"score": 0, "confidence": 0.5, "failure_reason": "bad_luck"}`,
			wantErr: true,
		},
		{
			name:    "contradiction requires violated",
			judge:   domain.JudgeContradiction,
			raw:     `{"score": 1, "confidence": 0.9}`,
			wantErr: true,
		},
		{
			name:         "code fence repaired",
			judge:        domain.JudgeSemantic,
			raw:          "```json\n{\"score\": 1, \"confidence\": 1}\n```",
			wantRepaired: true,
		},
		{
			name:         "trailing comma repaired",
			judge:        domain.JudgeContradiction,
			raw:          `{"score": 1, "confidence": 0.9, "violated": false,}`,
			wantRepaired: true,
		},
		{
			name:         "unquoted keys repaired",
			judge:        domain.JudgeNumeric,
			raw:          `{score: 1, confidence: 1, failure_reason: "none"}`,
			wantRepaired: true,
		},
		{
			name:    "unrepairable",
			judge:   domain.JudgeSemantic,
			raw:     `the answer looks right`,
			wantErr: true,
		},
		{
			name:    "unknown judge",
			judge:   domain.JudgeName("style"),
			raw:     `{"score": 1, "confidence": 1}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, repaired, err := ValidatePayload(tt.judge, []byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRepaired, repaired)
			_, err = DecodePayload(out)
			require.NoError(t, err)
		})
	}
}

func TestValidatePayload_SchemaErrorIsSentinel(t *testing.T) {
	_, _, err := ValidatePayload(domain.JudgeSemantic, []byte(`{"confidence": 0.5}`))
	assert.ErrorIs(t, err, ErrSchema)

	_, _, err = ValidatePayload(domain.JudgeSemantic, []byte(`not json`))
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidatePayload_NormalizesContradictionKinds(t *testing.T) {
	out, _, err := ValidatePayload(domain.JudgeContradiction,
		[]byte(`{"score": 0, "confidence": 0.9, "violated": true, "contradiction_kinds": [" Numeric "], "extra": 1}`))
	require.NoError(t, err)

	p, err := DecodePayload(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"numeric"}, p.ContradictionKinds)
	assert.NotContains(t, string(out), "extra")
}

func TestRepairJSON_NoChange(t *testing.T) {
	in := `{"score": 1}`
	assert.Equal(t, in, repairJSON(in))
}
