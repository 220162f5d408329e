package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "12346" {
		t.Errorf("expected port 12346, got %s", cfg.Server.Port)
	}
	if cfg.Dispatch.Cooldown != 3*time.Second {
		t.Errorf("expected cooldown 3s, got %v", cfg.Dispatch.Cooldown)
	}
	if cfg.Dispatch.TaskTimeout != 600*time.Second {
		t.Errorf("expected task timeout 600s, got %v", cfg.Dispatch.TaskTimeout)
	}
	if cfg.Cache.PreviewMB != 64 {
		t.Errorf("expected preview cache 64MB, got %d", cfg.Cache.PreviewMB)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
dispatch:
  cooldown: 10s
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Dispatch.Cooldown != 10*time.Second {
		t.Errorf("expected cooldown 10s, got %v", cfg.Dispatch.Cooldown)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Output.Dir != "output" {
		t.Errorf("expected default output dir, got %s", cfg.Output.Dir)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("VEOBRIDGE_PORT", "7070")
	t.Setenv("VEOBRIDGE_API_KEY", "secret")
	t.Setenv("VEOBRIDGE_TASK_TIMEOUT", "2m")
	t.Setenv("VEOBRIDGE_CACHE_PREVIEW_MB", "128")
	t.Setenv("VEOBRIDGE_OTEL_ENABLED", "true")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Auth.APIKey != "secret" {
		t.Errorf("expected api key secret, got %s", cfg.Auth.APIKey)
	}
	if cfg.Dispatch.TaskTimeout != 2*time.Minute {
		t.Errorf("expected task timeout 2m, got %v", cfg.Dispatch.TaskTimeout)
	}
	if cfg.Cache.PreviewMB != 128 {
		t.Errorf("expected preview cache 128MB, got %d", cfg.Cache.PreviewMB)
	}
	if !cfg.Otel.Enabled {
		t.Error("expected otel enabled")
	}
}

func TestValidateRequired(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"empty api key", func(c *Config) { c.Auth.APIKey = "" }},
		{"empty output dir", func(c *Config) { c.Output.Dir = "" }},
		{"negative cooldown", func(c *Config) { c.Dispatch.Cooldown = -time.Second }},
		{"zero task timeout", func(c *Config) { c.Dispatch.TaskTimeout = 0 }},
		{"zero poll interval", func(c *Config) { c.Dispatch.PollInterval = 0 }},
		{"zero cache size", func(c *Config) { c.Cache.PreviewMB = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFrom(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/veobridge.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "12346" {
		t.Errorf("expected default port, got %s", cfg.Server.Port)
	}
}
