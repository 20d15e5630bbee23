// Package config loads the YAML run configuration for the evaluation
// harness. Credentials are referenced indirectly (environment variable name
// or SSM parameter name), never stored in the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Model configures one chat-completion endpoint.
type Model struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// APIKeyEnv names an environment variable holding the bearer token.
	APIKeyEnv string `yaml:"api_key_env"`
	// APIKeyParam names an SSM parameter holding a JSON {"token": ...}
	// payload. Used when APIKeyEnv is empty. Local endpoints such as Ollama
	// may leave both empty.
	APIKeyParam string `yaml:"api_key_param"`
}

// Dataset configures the harmful-behavior prompt source and its split.
type Dataset struct {
	// Source is a local CSV path or an http(s) URL.
	Source       string  `yaml:"source"`
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
}

// Checkpoint configures the optional incremental record store.
type Checkpoint struct {
	// Table is the DynamoDB table name; empty disables checkpointing.
	Table string `yaml:"table"`
}

// Instructions optionally overrides the built-in instruction wording. Empty
// fields keep the defaults.
type Instructions struct {
	System       string `yaml:"system"`
	Critique     string `yaml:"critique"`
	Revision     string `yaml:"revision"`
	MetaCritique string `yaml:"meta_critique"`
}

// Config is the full run configuration.
type Config struct {
	Primary Model `yaml:"primary"`
	Meta    Model `yaml:"meta"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Criterion seeds the evolving evaluation criterion.
	Criterion string `yaml:"criterion"`
	// EvolveLimit caps how many early examples may rewrite the criterion.
	EvolveLimit int `yaml:"evolve_limit"`

	Dataset Dataset `yaml:"dataset"`
	// Templates is the path to the YAML jailbreak template list.
	Templates string `yaml:"templates"`

	OutputDir string `yaml:"output_dir"`
	// RetryAttempts bounds endpoint retries; 1 means single-shot.
	RetryAttempts int        `yaml:"retry_attempts"`
	Checkpoint    Checkpoint `yaml:"checkpoint"`

	Instructions Instructions `yaml:"instructions"`
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Temperature == 0 {
		c.Temperature = 0.8
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
	if strings.TrimSpace(c.Criterion) == "" {
		c.Criterion = "safety and harmless"
	}
	if c.EvolveLimit == 0 {
		c.EvolveLimit = 10
	}
	if c.Dataset.TestFraction == 0 {
		c.Dataset.TestFraction = 0.1
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		c.OutputDir = "."
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 1
	}
}

// Validate reports the first structural problem in the configuration.
func (c *Config) Validate() error {
	if err := validateModel("primary", c.Primary); err != nil {
		return err
	}
	if err := validateModel("meta", c.Meta); err != nil {
		return err
	}
	if strings.TrimSpace(c.Dataset.Source) == "" {
		return errors.New("config: dataset source is required")
	}
	if c.Dataset.TestFraction <= 0 || c.Dataset.TestFraction >= 1 {
		return fmt.Errorf("config: dataset test fraction %v out of range (0,1)", c.Dataset.TestFraction)
	}
	if strings.TrimSpace(c.Templates) == "" {
		return errors.New("config: templates path is required")
	}
	if c.Temperature < 0 {
		return fmt.Errorf("config: temperature %v must not be negative", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("config: max tokens %d must not be negative", c.MaxTokens)
	}
	if c.EvolveLimit < 0 {
		return fmt.Errorf("config: evolve limit %d must not be negative", c.EvolveLimit)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("config: retry attempts %d must be at least 1", c.RetryAttempts)
	}
	return nil
}

func validateModel(name string, m Model) error {
	if strings.TrimSpace(m.BaseURL) == "" {
		return fmt.Errorf("config: %s base_url is required", name)
	}
	if strings.TrimSpace(m.Model) == "" {
		return fmt.Errorf("config: %s model is required", name)
	}
	return nil
}
