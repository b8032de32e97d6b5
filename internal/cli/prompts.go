package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-explab/internal/domain"
)

// promptFile is the document form of a prompt set. A bare list of prompts
// is accepted as well.
type promptFile struct {
	System  string          `yaml:"system"`
	Prompts []domain.Prompt `yaml:"prompts"`
}

// loadPrompts reads a prompt set. YAML and JSON files hold a list of
// prompts; any other file is a single user prompt.
func loadPrompts(path string) (domain.PromptSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return domain.PromptSet{{User: strings.TrimSpace(string(data))}}, nil
	}

	var list []domain.Prompt
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc promptFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	for i := range doc.Prompts {
		if doc.Prompts[i].System == "" {
			doc.Prompts[i].System = doc.System
		}
	}
	return doc.Prompts, nil
}

// buildPrompts combines a prompts file with --prompt flags. system applies
// to every prompt that has none of its own.
func buildPrompts(file string, users []string, system string) (domain.PromptSet, error) {
	var set domain.PromptSet
	if file != "" {
		loaded, err := loadPrompts(file)
		if err != nil {
			return nil, err
		}
		set = append(set, loaded...)
	}
	for _, u := range users {
		set = append(set, domain.Prompt{User: u})
	}
	if system != "" {
		for i := range set {
			if set[i].System == "" {
				set[i].System = system
			}
		}
	}
	return set, nil
}
