package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Model.Name != "gpt-4o" || cfg.Model.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("unexpected model defaults: %+v", cfg.Model)
	}
	if cfg.Retention.MaxSessions != 10 {
		t.Fatalf("unexpected retention default: %d", cfg.Retention.MaxSessions)
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("default template must parse: %v", err)
	}
	if cfg.Executor.SimulateDelayMS != 500 || cfg.Executor.DefaultWaitMS != 1000 {
		t.Fatalf("unexpected executor defaults: %+v", cfg.Executor)
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Model.Name == "" {
		t.Fatalf("expected default config, got %+v", cfg)
	}
}

func TestLoadOptionalReadsFile(t *testing.T) {
	dir := t.TempDir()
	yml := `model:
  name: local-model
  api_key_env: LOCAL_KEY
executor:
  simulate_delay_ms: 0
  default_wait_ms: 250
retention:
  max_sessions: 3
policy:
  extra_keywords: ["format"]
capture:
  display: 1
`
	if err := os.WriteFile(filepath.Join(dir, "screenpilot.yml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Name != "local-model" || cfg.Retention.MaxSessions != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Policy.ExtraKeywords) != 1 || cfg.Policy.ExtraKeywords[0] != "format" {
		t.Fatalf("unexpected keywords: %+v", cfg.Policy.ExtraKeywords)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Model.Name = "" },
		func(c *Config) { c.Model.APIKeyEnv = "" },
		func(c *Config) { c.Executor.SimulateDelayMS = -1 },
		func(c *Config) { c.Executor.DefaultWaitMS = 0 },
		func(c *Config) { c.Retention.MaxSessions = 0 },
		func(c *Config) { c.Policy.ExtraKeywords = []string{""} },
		func(c *Config) { c.Capture.Display = -1 },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestIsConfigured(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKeyEnv = "SCREENPILOT_TEST_KEY"
	os.Unsetenv("SCREENPILOT_TEST_KEY")
	if cfg.IsConfigured() {
		t.Fatalf("unset env var should read as unconfigured")
	}
	t.Setenv("SCREENPILOT_TEST_KEY", "sk-test")
	if !cfg.IsConfigured() {
		t.Fatalf("set env var should read as configured")
	}
	if cfg.APIKey() != "sk-test" {
		t.Fatalf("unexpected key: %s", cfg.APIKey())
	}
}
