package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:5000/api" {
		t.Errorf("expected default API base URL, got %s", cfg.APIBaseURL)
	}
	if cfg.DeskPort != "8085" {
		t.Errorf("expected default desk port 8085, got %s", cfg.DeskPort)
	}
	if cfg.ReloadDelay != 2*time.Second {
		t.Errorf("expected reload delay 2s, got %s", cfg.ReloadDelay)
	}
	if !cfg.DigestiveLegacyEndpoint {
		t.Error("expected digestive legacy endpoint to default to true")
	}
	if cfg.SessionFile == "" {
		t.Error("expected a default session file")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://ehr.example.org/api/")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("BREAKER_ENABLED", "false")
	t.Setenv("DIGESTIVE_LEGACY_ENDPOINT", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "https://ehr.example.org/api" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.APIBaseURL)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.BreakerEnabled {
		t.Error("expected breaker disabled")
	}
	if cfg.DigestiveLegacyEndpoint {
		t.Error("expected digestive legacy endpoint disabled")
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		APIBaseURL:         "http://localhost:5000/api",
		SessionFile:        "/tmp/session.json",
		BreakerEnabled:     true,
		BreakerMaxFailures: 3,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad scheme", func(c *Config) { c.APIBaseURL = "ftp://host/api" }},
		{"no host", func(c *Config) { c.APIBaseURL = "http:///api" }},
		{"no session file", func(c *Config) { c.SessionFile = "" }},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }},
		{"breaker without threshold", func(c *Config) { c.BreakerMaxFailures = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
