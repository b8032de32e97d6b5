package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahrav/go-explab/internal/domain"
)

// Criterion scores one aspect of a response in [0, 1]. Values outside the
// range are clamped by the rubric.
type Criterion interface {
	Name() string
	Evaluate(prompt domain.Prompt, resp domain.ModelResponse) float64
}

// WeightedCriterion pairs a criterion with its weight in the rubric mean.
type WeightedCriterion struct {
	Criterion Criterion
	Weight    float64
}

// Weighted wraps c with weight w.
func Weighted(c Criterion, w float64) WeightedCriterion {
	return WeightedCriterion{Criterion: c, Weight: w}
}

// DefaultPassThreshold is the rubric score at or above which a response is
// labelled "pass".
const DefaultPassThreshold = 0.5

// Labels assigned by threshold-based scorers.
const (
	LabelPass = "pass"
	LabelFail = "fail"
)

// Rubric is a local, deterministic Scorer: the weighted mean of its
// criteria.
type Rubric struct {
	name      string
	criteria  []WeightedCriterion
	threshold float64
}

var _ Scorer = (*Rubric)(nil)

// NewRubric builds a rubric. Weights must be positive and names unique.
func NewRubric(name string, threshold float64, criteria ...WeightedCriterion) (*Rubric, error) {
	if len(criteria) == 0 {
		return nil, ErrNoCriteria
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	seen := make(map[string]struct{}, len(criteria))
	for _, wc := range criteria {
		if wc.Weight <= 0 {
			return nil, fmt.Errorf("%w: %s has weight %v", ErrInvalidWeight, wc.Criterion.Name(), wc.Weight)
		}
		if _, dup := seen[wc.Criterion.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCriterion, wc.Criterion.Name())
		}
		seen[wc.Criterion.Name()] = struct{}{}
	}
	if name == "" {
		name = "default"
	}
	return &Rubric{name: name, criteria: criteria, threshold: threshold}, nil
}

// Name implements Scorer.
func (r *Rubric) Name() string { return "rubric:" + r.name }

// Score implements Scorer.
func (r *Rubric) Score(_ context.Context, prompt domain.Prompt, resp domain.ModelResponse) domain.EvaluationResult {
	scores := make(map[string]float64, len(r.criteria))
	parts := make([]string, 0, len(r.criteria))

	var sum, weights float64
	for _, wc := range r.criteria {
		s := clamp01(wc.Criterion.Evaluate(prompt, resp))
		scores[wc.Criterion.Name()] = s
		sum += s * wc.Weight
		weights += wc.Weight
		parts = append(parts, fmt.Sprintf("%s=%.2f", wc.Criterion.Name(), s))
	}

	score := sum / weights
	label := LabelFail
	if score >= r.threshold {
		label = LabelPass
	}
	return domain.NewScoredResult(resp.Pair, r.Name(), score, label, strings.Join(parts, " "), scores)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

type criterionFunc struct {
	name string
	fn   func(domain.Prompt, domain.ModelResponse) float64
}

func (c criterionFunc) Name() string { return c.name }

func (c criterionFunc) Evaluate(p domain.Prompt, r domain.ModelResponse) float64 { return c.fn(p, r) }

// CriterionFunc adapts fn into a named Criterion.
func CriterionFunc(name string, fn func(domain.Prompt, domain.ModelResponse) float64) Criterion {
	return criterionFunc{name: name, fn: fn}
}

// NonEmpty scores 1 when the content has any non-whitespace text.
func NonEmpty() Criterion {
	return CriterionFunc("non_empty", func(_ domain.Prompt, r domain.ModelResponse) float64 {
		if strings.TrimSpace(r.Content) == "" {
			return 0
		}
		return 1
	})
}

// LengthRange scores 1 when the content length in runes lies in
// [minLen, maxLen] and decays proportionally outside it. A maxLen of zero
// means no upper bound.
func LengthRange(minLen, maxLen int) Criterion {
	return CriterionFunc("length_range", func(_ domain.Prompt, r domain.ModelResponse) float64 {
		n := utf8.RuneCountInString(strings.TrimSpace(r.Content))
		switch {
		case n < minLen:
			return float64(n) / float64(minLen)
		case maxLen > 0 && n > maxLen:
			return float64(maxLen) / float64(n)
		default:
			return 1
		}
	})
}

// RequiredTerms scores the fraction of terms present in the content,
// case-insensitively.
func RequiredTerms(terms ...string) Criterion {
	return CriterionFunc("required_terms", func(_ domain.Prompt, r domain.ModelResponse) float64 {
		if len(terms) == 0 {
			return 1
		}
		return float64(countTerms(r.Content, terms)) / float64(len(terms))
	})
}

// ForbiddenTerms scores 1 minus the fraction of terms present in the
// content, case-insensitively.
func ForbiddenTerms(terms ...string) Criterion {
	return CriterionFunc("forbidden_terms", func(_ domain.Prompt, r domain.ModelResponse) float64 {
		if len(terms) == 0 {
			return 1
		}
		return 1 - float64(countTerms(r.Content, terms))/float64(len(terms))
	})
}

func countTerms(content string, terms []string) int {
	lowered := strings.ToLower(content)
	n := 0
	for _, t := range terms {
		if strings.Contains(lowered, strings.ToLower(t)) {
			n++
		}
	}
	return n
}

// LatencyBudget scores 1 when the response arrived within budget and
// budget/latency otherwise.
func LatencyBudget(budget time.Duration) Criterion {
	return CriterionFunc("latency_budget", func(_ domain.Prompt, r domain.ModelResponse) float64 {
		if r.Latency <= budget {
			return 1
		}
		return float64(budget) / float64(r.Latency)
	})
}

// JSONFormat scores 1 when the content, after stripping markdown fences,
// is valid JSON.
func JSONFormat() Criterion {
	return CriterionFunc("json_format", func(_ domain.Prompt, r domain.ModelResponse) float64 {
		if json.Valid([]byte(stripCodeFence(r.Content))) {
			return 1
		}
		return 0
	})
}

// RubricConfig declares a rubric from configuration. Zero-valued fields
// leave the matching criterion out, except NonEmpty which is always present.
type RubricConfig struct {
	Name           string        `mapstructure:"name" yaml:"name" json:"name"`
	PassThreshold  float64       `mapstructure:"pass_threshold" yaml:"pass_threshold" json:"pass_threshold" validate:"min=0,max=1"`
	MinLength      int           `mapstructure:"min_length" yaml:"min_length" json:"min_length" validate:"min=0"`
	MaxLength      int           `mapstructure:"max_length" yaml:"max_length" json:"max_length" validate:"min=0"`
	RequiredTerms  []string      `mapstructure:"required_terms" yaml:"required_terms" json:"required_terms,omitempty"`
	ForbiddenTerms []string      `mapstructure:"forbidden_terms" yaml:"forbidden_terms" json:"forbidden_terms,omitempty"`
	LatencyBudget  time.Duration `mapstructure:"latency_budget" yaml:"latency_budget" json:"latency_budget"`
	RequireJSON    bool          `mapstructure:"require_json" yaml:"require_json" json:"require_json"`
}

// Build assembles the rubric described by c with unit weights.
func (c RubricConfig) Build() (*Rubric, error) {
	criteria := []WeightedCriterion{Weighted(NonEmpty(), 1)}
	if c.MinLength > 0 || c.MaxLength > 0 {
		criteria = append(criteria, Weighted(LengthRange(c.MinLength, c.MaxLength), 1))
	}
	if len(c.RequiredTerms) > 0 {
		criteria = append(criteria, Weighted(RequiredTerms(c.RequiredTerms...), 1))
	}
	if len(c.ForbiddenTerms) > 0 {
		criteria = append(criteria, Weighted(ForbiddenTerms(c.ForbiddenTerms...), 1))
	}
	if c.LatencyBudget > 0 {
		criteria = append(criteria, Weighted(LatencyBudget(c.LatencyBudget), 1))
	}
	if c.RequireJSON {
		criteria = append(criteria, Weighted(JSONFormat(), 1))
	}

	threshold := c.PassThreshold
	if threshold == 0 {
		threshold = DefaultPassThreshold
	}
	return NewRubric(c.Name, threshold, criteria...)
}
