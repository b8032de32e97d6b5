package evaluation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// minReasoningLength defines the minimum character count for reasoning text.
const minReasoningLength = 10

var verdictValidate = validator.New(validator.WithRequiredStructEnabled())

var unquotedKeyRegex = regexp.MustCompile(`(\{|,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)

// Verdict is the JSON object a judge model must reply with.
type Verdict struct {
	// Score is the normalized evaluation result.
	Score *float64 `json:"score" validate:"required,min=0,max=1"`

	// Reasoning explains the score.
	Reasoning string `json:"reasoning" validate:"required"`

	// Confidence is the judge's confidence in the score. Optional.
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,min=0,max=1"`

	// Label is an optional categorical verdict.
	Label string `json:"label,omitempty"`
}

// ParseVerdict validates a judge reply with a one-shot repair policy: the
// raw text is parsed strictly first, and only if it is not valid JSON is a
// single round of common fixes applied before parsing again. A reply that
// parses but breaks the schema is rejected without repair.
//
// repaired reports whether the repair pass produced the accepted verdict.
func ParseVerdict(raw string) (v Verdict, repaired bool, err error) {
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		if err := validateVerdict(&v); err != nil {
			return Verdict{}, false, fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
		}
		return v, false, nil
	}

	fixed := repairCommonJSONIssues(raw)
	if fixed == raw {
		return Verdict{}, false, fmt.Errorf("%w: reply is not JSON", ErrInvalidVerdict)
	}

	v = Verdict{}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return Verdict{}, false, fmt.Errorf("%w: still invalid after repair: %w", ErrInvalidVerdict, err)
	}
	if err := validateVerdict(&v); err != nil {
		return Verdict{}, false, fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}
	return v, true, nil
}

func validateVerdict(v *Verdict) error {
	if err := verdictValidate.Struct(v); err != nil {
		return err
	}
	if n := len(strings.TrimSpace(v.Reasoning)); n < minReasoningLength {
		return fmt.Errorf("reasoning too short: %d characters (minimum %d)", n, minReasoningLength)
	}
	return nil
}

// repairCommonJSONIssues applies conservative fixes for typical model
// output problems: surrounding prose, markdown fences, trailing commas,
// unquoted keys, and single quotes. Returns the input unchanged when no
// fix applies.
func repairCommonJSONIssues(s string) string {
	repaired := stripCodeFence(s)

	if start, end := strings.Index(repaired, "{"), strings.LastIndex(repaired, "}"); start >= 0 && end > start {
		repaired = repaired[start : end+1]
	}

	repaired = strings.ReplaceAll(repaired, ",\n}", "\n}")
	repaired = strings.ReplaceAll(repaired, ",\r\n}", "\r\n}")
	repaired = strings.ReplaceAll(repaired, ", }", " }")
	repaired = strings.ReplaceAll(repaired, ",}", "}")

	repaired = unquotedKeyRegex.ReplaceAllString(repaired, `$1"$2":`)

	if !strings.Contains(repaired, `"`) && strings.Contains(repaired, `'`) {
		repaired = strings.ReplaceAll(repaired, `'`, `"`)
	}

	return strings.TrimSpace(repaired)
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
