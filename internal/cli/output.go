package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/statistics"
	"github.com/ahrav/go-explab/internal/store"
)

// resolve accepts an experiment ID or name.
func resolve(ctx context.Context, st store.Store, ref string) (store.Handle, error) {
	h := store.Handle(ref)
	if _, err := st.Load(ctx, h); err == nil {
		return h, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	h, ok, err := st.FindByName(ctx, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", store.ErrNotFound, ref)
	}
	return h, nil
}

type modelScore struct {
	model  string
	scored int
	passed int
	sum    float64
	other  int
}

// printEvaluationSummary prints the mean score per model.
func printEvaluationSummary(w io.Writer, exp *domain.Experiment) {
	if len(exp.Evaluations) == 0 {
		return
	}
	var order []string
	scores := map[string]*modelScore{}
	for _, r := range exp.Evaluations {
		s, ok := scores[r.Pair.ModelID]
		if !ok {
			s = &modelScore{model: r.Pair.ModelID}
			scores[r.Pair.ModelID] = s
			order = append(order, r.Pair.ModelID)
		}
		if r.Status != domain.EvaluationScored {
			s.other++
			continue
		}
		s.scored++
		s.sum += r.Score
		if r.Label == "pass" {
			s.passed++
		}
	}

	fmt.Fprintf(w, "evaluation (%s):\n", exp.Judge)
	for _, id := range order {
		s := scores[id]
		if s.scored == 0 {
			fmt.Fprintf(w, "  %s: no scored responses (%d not scored)\n", id, s.other)
			continue
		}
		fmt.Fprintf(w, "  %s: mean %.2f | passed %d/%d", id, s.sum/float64(s.scored), s.passed, s.scored)
		if s.other > 0 {
			fmt.Fprintf(w, " | %d not scored", s.other)
		}
		fmt.Fprintln(w)
	}
}

// printExperiment renders exp for people.
func printExperiment(w io.Writer, exp *domain.Experiment) {
	name := exp.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "Experiment %s %s\n", exp.ID, name)
	fmt.Fprintf(w, "Created %s | mode %s\n", exp.CreatedAt.Local().Format("2006-01-02 15:04:05"), exp.Mode)
	fmt.Fprintln(w, statistics.FormatSummary(exp.Summary))
	if models := statistics.ByModel(exp.Stats); len(models) > 1 {
		for _, m := range models {
			fmt.Fprintf(w, "  %s: %s\n", m.ModelID, statistics.FormatSummary(m.Summary))
		}
	}

	evals := make(map[int]domain.EvaluationResult, len(exp.Evaluations))
	for _, r := range exp.Evaluations {
		evals[r.Pair.Index] = r
	}

	for p, prompt := range exp.Prompts {
		fmt.Fprintf(w, "\n== %s ==\n", exp.Prompts.Key(p))
		if prompt.System != "" {
			fmt.Fprintf(w, "system: %s\n", prompt.System)
		}
		fmt.Fprintf(w, "user: %s\n", prompt.User)

		for _, resp := range exp.ResponsesForPrompt(p) {
			fmt.Fprintf(w, "\n-- %s\n", statistics.FormatLine(statistics.StatsFor(resp)))
			if resp.Content != "" {
				fmt.Fprintln(w, strings.TrimSpace(resp.Content))
			}
			if r, ok := evals[resp.Pair.Index]; ok {
				if r.Status == domain.EvaluationScored {
					fmt.Fprintf(w, "score %.2f %s: %s\n", r.Score, r.Label, r.Rationale)
				} else {
					fmt.Fprintf(w, "%s: %s\n", r.Status, r.Rationale)
				}
			}
		}

		for _, c := range exp.Comparisons {
			if c.PromptIndex != p {
				continue
			}
			if c.Error != "" {
				fmt.Fprintf(w, "\ncomparison failed: %s\n", c.Error)
			} else {
				fmt.Fprintf(w, "\ncomparison:\n%s\n", strings.TrimSpace(c.Report))
			}
		}
	}

	if exp.Notes != "" {
		fmt.Fprintf(w, "\nNotes:\n%s\n", strings.TrimSpace(exp.Notes))
	}
}

// withNotes is the exported document form, which carries the notes the
// structured record leaves out.
type withNotes struct {
	*domain.Experiment
	Notes string `json:"notes,omitempty"`
}

func writeJSON(w io.Writer, exp *domain.Experiment) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(withNotes{Experiment: exp, Notes: exp.Notes})
}

// writeYAML reuses the JSON field names so both formats agree.
func writeYAML(w io.Writer, exp *domain.Experiment) error {
	data, err := json.Marshal(withNotes{Experiment: exp, Notes: exp.Notes})
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
