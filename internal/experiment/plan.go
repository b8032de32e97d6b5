package experiment

import (
	"github.com/ahrav/go-explab/internal/domain"
)

// Plan is the input of one run.
type Plan struct {
	// Name is an optional human-readable experiment name.
	Name string

	Configs []domain.ModelConfig
	Prompts domain.PromptSet

	// Mode defaults to parallel when empty.
	Mode domain.ExecutionMode

	// Notes seeds the experiment's free-form notes.
	Notes string
}

// Validate reports configuration errors that must fail before any work
// starts.
func (p *Plan) Validate() error {
	if p.Mode == "" {
		p.Mode = domain.ModeParallel
	}
	if err := p.Mode.Validate(); err != nil {
		return err
	}
	if err := domain.ValidateModelConfigs(p.Configs); err != nil {
		return err
	}
	return p.Prompts.Validate()
}

// PairCount returns |Configs| x |Prompts|.
func (p Plan) PairCount() int { return len(p.Configs) * len(p.Prompts) }

// pairAt returns the pair for prompt-major index idx.
func (p Plan) pairAt(idx int) domain.Pair {
	n := len(p.Configs)
	promptIdx, modelIdx := idx/n, idx%n
	return domain.Pair{
		Index:       idx,
		PromptIndex: promptIdx,
		ModelIndex:  modelIdx,
		ModelID:     p.Configs[modelIdx].ID(),
	}
}
