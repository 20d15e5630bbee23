package dataset

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholder is the substitution point each jailbreak template must contain
// exactly once.
const Placeholder = "{prompt}"

// TemplateSet is an ordered, validated collection of jailbreak templates.
type TemplateSet struct {
	templates []string
}

// NewTemplateSet validates that every template contains the placeholder
// exactly once. A template without the placeholder would collapse distinct
// prompts into the same formatted string.
func NewTemplateSet(templates []string) (*TemplateSet, error) {
	if len(templates) == 0 {
		return nil, errors.New("dataset: template set must not be empty")
	}
	for i, t := range templates {
		if n := strings.Count(t, Placeholder); n != 1 {
			return nil, fmt.Errorf("dataset: template %d contains %d %q placeholders, want 1", i, n, Placeholder)
		}
	}
	out := make([]string, len(templates))
	copy(out, templates)
	return &TemplateSet{templates: out}, nil
}

// LoadTemplateSet reads a YAML file holding a list of template strings.
func LoadTemplateSet(path string) (*TemplateSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read templates %s: %w", path, err)
	}
	var templates []string
	if err := yaml.Unmarshal(raw, &templates); err != nil {
		return nil, fmt.Errorf("dataset: parse templates %s: %w", path, err)
	}
	return NewTemplateSet(templates)
}

// Len returns the number of distinct templates in the set.
func (s *TemplateSet) Len() int {
	return len(s.templates)
}

// Cycle returns a sequence of n templates, repeating the set in order until
// n is covered.
func (s *TemplateSet) Cycle(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s.templates[i%len(s.templates)]
	}
	return out
}

// Format substitutes the prompt into the template's placeholder.
func Format(template, prompt string) string {
	return strings.Replace(template, Placeholder, prompt, 1)
}
