package judge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ahrav/finjudge/internal/domain"
)

// hashInput is the canonical form hashed into a prompt identity. Field order is
// fixed by the struct so the encoding is stable.
type hashInput struct {
	Judge       domain.JudgeName    `json:"judge"`
	Version     string              `json:"version"`
	Question    string              `json:"question"`
	GoldAnswer  string              `json:"gold_answer"`
	ModelAnswer string              `json:"model_answer"`
	Rubric      []domain.RubricItem `json:"rubric"`
	Tolerance   *float64            `json:"tolerance,omitempty"`
}

// PromptHash returns the content hash identifying one judge request, in the
// form "sha256:<hex>". The text fields are hashed exactly as sent, so two
// requests hash equal only when the judge received identical bytes.
// Identical judge, version and input always hash equal.
func PromptHash(name domain.JudgeName, version string, in domain.JudgeInput) string {
	rubric := in.Rubric
	if rubric == nil {
		rubric = []domain.RubricItem{}
	}
	// Marshaling strings, a float and a slice of string structs cannot fail.
	b, _ := json.Marshal(hashInput{
		Judge:       name,
		Version:     version,
		Question:    in.Question,
		GoldAnswer:  in.GoldAnswer,
		ModelAnswer: in.ModelAnswer,
		Rubric:      rubric,
		Tolerance:   in.Tolerance,
	})
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}
