package judge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/finjudge/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// unquotedKeyPattern finds object keys an LLM judge emitted without quotes.
var unquotedKeyPattern = regexp.MustCompile(`(\{|,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)

// Payload is the normalized output payload of every judge. Fields that do not
// apply to a judge are omitted.
type Payload struct {
	Score              *float64 `json:"score"`
	Confidence         *float64 `json:"confidence"`
	FailureReason      string   `json:"failure_reason,omitempty"`
	Violated           *bool    `json:"violated,omitempty"`
	ContradictionKinds []string `json:"contradiction_kinds,omitempty"`
	Reason             string   `json:"reason,omitempty"`
}

// DecodePayload parses a normalized payload recorded in a JudgeCall.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return p, nil
}

// Per-judge response schemas. Pointers mark fields that must be present even
// when their value is zero.
type semanticSchema struct {
	Score         *float64 `json:"score"          validate:"required,min=0,max=1"`
	Confidence    *float64 `json:"confidence"     validate:"required,min=0,max=1"`
	FailureReason string   `json:"failure_reason" validate:"omitempty,oneof=none extraction_failed alignment_failed tolerance_failed parse_error"`
	Reason        string   `json:"reason"`
}

type numericSchema struct {
	Score         *float64 `json:"score"          validate:"required,min=0,max=1"`
	Confidence    *float64 `json:"confidence"     validate:"required,min=0,max=1"`
	FailureReason string   `json:"failure_reason" validate:"required,oneof=none extraction_failed alignment_failed tolerance_failed parse_error"`
	Reason        string   `json:"reason"`
}

type contradictionSchema struct {
	Score              *float64 `json:"score"               validate:"required,min=0,max=1"`
	Confidence         *float64 `json:"confidence"          validate:"required,min=0,max=1"`
	Violated           *bool    `json:"violated"            validate:"required"`
	ContradictionKinds []string `json:"contradiction_kinds" validate:"dive,required"`
	Reason             string   `json:"reason"`
}

// ValidatePayload checks raw against the schema of the named judge. JSON that
// does not decode gets one repair attempt; a decoded payload that violates the
// schema is rejected without repair. On success the payload
// is returned in normalized form, with repaired reporting whether repair was
// needed.
func ValidatePayload(name domain.JudgeName, raw []byte) (normalized []byte, repaired bool, err error) {
	p, err := parseSchema(name, raw)
	if err == nil {
		return p, false, nil
	}
	if errors.Is(err, ErrSchema) || errors.Is(err, domain.ErrUnknownJudge) {
		return nil, false, err
	}

	fixed := repairJSON(string(raw))
	if fixed == string(raw) {
		return nil, false, fmt.Errorf("%w: malformed JSON: %w", ErrSchema, err)
	}
	p, err = parseSchema(name, []byte(fixed))
	if err != nil {
		return nil, false, fmt.Errorf("%w: still invalid after repair: %w", ErrSchema, err)
	}
	return p, true, nil
}

func parseSchema(name domain.JudgeName, raw []byte) ([]byte, error) {
	var out Payload
	switch name {
	case domain.JudgeSemantic:
		var s semanticSchema
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchema, err)
		}
		out = Payload{Score: s.Score, Confidence: s.Confidence, FailureReason: s.FailureReason, Reason: s.Reason}
	case domain.JudgeNumeric:
		var s numericSchema
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchema, err)
		}
		out = Payload{Score: s.Score, Confidence: s.Confidence, FailureReason: s.FailureReason, Reason: s.Reason}
	case domain.JudgeContradiction:
		var s contradictionSchema
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchema, err)
		}
		kinds := make([]string, 0, len(s.ContradictionKinds))
		for _, k := range s.ContradictionKinds {
			kinds = append(kinds, strings.ToLower(strings.TrimSpace(k)))
		}
		out = Payload{
			Score:              s.Score,
			Confidence:         s.Confidence,
			Violated:           s.Violated,
			ContradictionKinds: kinds,
			Reason:             s.Reason,
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJudge, name)
	}
	return json.Marshal(out)
}

// repairJSON applies conservative fixes for common judge formatting mistakes:
// markdown fences, trailing commas, unquoted keys and single quotes.
// It returns s unchanged when nothing applies.
func repairJSON(s string) string {
	r := strings.TrimSpace(s)
	r = strings.TrimPrefix(r, "```json")
	r = strings.TrimPrefix(r, "```")
	r = strings.TrimSuffix(r, "```")

	r = strings.ReplaceAll(r, ",\n}", "\n}")
	r = strings.ReplaceAll(r, ",\r\n}", "\r\n}")
	r = strings.ReplaceAll(r, ", }", " }")
	r = strings.ReplaceAll(r, ",}", "}")
	r = strings.ReplaceAll(r, ",]", "]")

	r = unquotedKeyPattern.ReplaceAllString(r, `$1"$2":`)

	if !strings.Contains(r, `"`) && strings.Contains(r, `'`) {
		r = strings.ReplaceAll(r, `'`, `"`)
	}

	r = strings.TrimSpace(r)
	if r == strings.TrimSpace(s) {
		return s
	}
	return r
}
