package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models screenpilot.yml.
type Config struct {
	Model struct {
		Name      string `yaml:"name"`
		BaseURL   string `yaml:"base_url"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"model"`
	Executor struct {
		SimulateDelayMS int `yaml:"simulate_delay_ms"`
		DefaultWaitMS   int `yaml:"default_wait_ms"`
	} `yaml:"executor"`
	Retention struct {
		MaxSessions int `yaml:"max_sessions"`
	} `yaml:"retention"`
	Policy struct {
		ExtraKeywords []string `yaml:"extra_keywords"`
	} `yaml:"policy"`
	Capture struct {
		Display int `yaml:"display"`
	} `yaml:"capture"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with sp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("config.model.name is required")
	}
	if c.Model.APIKeyEnv == "" {
		return fmt.Errorf("config.model.api_key_env is required")
	}
	if c.Executor.SimulateDelayMS < 0 {
		return fmt.Errorf("config.executor.simulate_delay_ms must not be negative")
	}
	if c.Executor.DefaultWaitMS <= 0 {
		return fmt.Errorf("config.executor.default_wait_ms must be positive")
	}
	if c.Retention.MaxSessions <= 0 {
		return fmt.Errorf("config.retention.max_sessions must be positive")
	}
	for _, kw := range c.Policy.ExtraKeywords {
		if kw == "" {
			return fmt.Errorf("config.policy.extra_keywords contains an empty keyword")
		}
	}
	if c.Capture.Display < 0 {
		return fmt.Errorf("config.capture.display must not be negative")
	}
	return nil
}

// IsConfigured reports whether the reasoning-model credential is present in
// the environment. It does not validate the credential against the provider.
func (c *Config) IsConfigured() bool {
	return os.Getenv(c.Model.APIKeyEnv) != ""
}

// APIKey returns the credential from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.Model.APIKeyEnv)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "screenpilot.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `model:
  name: gpt-4o
  base_url: ""
  api_key_env: OPENAI_API_KEY

executor:
  simulate_delay_ms: 500
  default_wait_ms: 1000

retention:
  max_sessions: 10

policy:
  extra_keywords: []

capture:
  display: 0
`
