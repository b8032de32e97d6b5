package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahrav/go-explab/internal/domain"
)

// DefaultComparisonSystemPrompt is the system prompt of comparison calls.
const DefaultComparisonSystemPrompt = "You are an expert evaluator. Compare LLM responses and provide fair, objective analysis."

// Comparator asks a judge model to rank every successful response to a
// prompt and explain the ranking in free text.
type Comparator struct {
	client       JudgeClient
	model        domain.ModelConfig
	systemPrompt string
}

var _ Comparer = (*Comparator)(nil)

// NewComparator creates a comparator. An empty systemPrompt uses
// DefaultComparisonSystemPrompt.
func NewComparator(client JudgeClient, model domain.ModelConfig, systemPrompt string) *Comparator {
	if systemPrompt == "" {
		systemPrompt = DefaultComparisonSystemPrompt
	}
	return &Comparator{client: client, model: model, systemPrompt: systemPrompt}
}

// Compare implements Comparer. Failures are recorded in Comparison.Error.
func (c *Comparator) Compare(ctx context.Context, promptIndex int, prompt domain.Prompt, responses []domain.ModelResponse) domain.Comparison {
	out := domain.Comparison{PromptIndex: promptIndex, Evaluator: "compare:" + c.model.ID()}

	user, n := buildComparePrompt(prompt, responses)
	if n == 0 {
		out.Error = ErrNoComparableResponses.Error()
		return out
	}

	completion, err := c.client.Judge(ctx, c.model, domain.Prompt{System: c.systemPrompt, User: user})
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Report = completion.Content
	return out
}

// buildComparePrompt lists the successful responses with their latency and
// token usage. It returns the prompt and the number of responses included.
func buildComparePrompt(prompt domain.Prompt, responses []domain.ModelResponse) (string, int) {
	var b strings.Builder
	b.WriteString("Compare the following responses to the same request and rank them from best to worst with brief explanations.\n\n")
	fmt.Fprintf(&b, "System prompt: %s\n\n", prompt.System)
	fmt.Fprintf(&b, "User prompt: %s\n\n", prompt.User)

	n := 0
	for _, r := range responses {
		if r.Outcome != domain.OutcomeSucceeded {
			continue
		}
		n++
		fmt.Fprintf(&b, "Response %d (model: %s, time: %.2fs, tokens: %d):\n%s\n\n",
			n, r.Pair.ModelID, r.Latency.Seconds(), r.Usage.Total, r.Content)
	}

	fmt.Fprintf(&b, `Provide:
1. A ranking from best (1st place) to worst (%s place)
2. A brief explanation for each place
3. The key strengths and weaknesses of each response
4. Take response speed and token usage into account`, ordinal(n))
	return b.String(), n
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
