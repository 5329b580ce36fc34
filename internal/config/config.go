package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                     string        `mapstructure:"ENV"`
	LogLevel                string        `mapstructure:"LOG_LEVEL"`
	APIBaseURL              string        `mapstructure:"API_BASE_URL"`
	SessionFile             string        `mapstructure:"SESSION_FILE"`
	DeskPort                string        `mapstructure:"DESK_PORT"`
	CORSOrigins             []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout          time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReloadDelay             time.Duration `mapstructure:"RELOAD_DELAY"`
	BreakerEnabled          bool          `mapstructure:"BREAKER_ENABLED"`
	BreakerMaxFailures      uint32        `mapstructure:"BREAKER_MAX_FAILURES"`
	BreakerOpenTimeout      time.Duration `mapstructure:"BREAKER_OPEN_TIMEOUT"`
	MetricsEnabled          bool          `mapstructure:"METRICS_ENABLED"`
	DigestiveLegacyEndpoint bool          `mapstructure:"DIGESTIVE_LEGACY_ENDPOINT"`
}

var keys = []string{
	"ENV",
	"LOG_LEVEL",
	"API_BASE_URL",
	"SESSION_FILE",
	"DESK_PORT",
	"CORS_ORIGINS",
	"REQUEST_TIMEOUT",
	"RELOAD_DELAY",
	"BREAKER_ENABLED",
	"BREAKER_MAX_FAILURES",
	"BREAKER_OPEN_TIMEOUT",
	"METRICS_ENABLED",
	"DIGESTIVE_LEGACY_ENDPOINT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_BASE_URL", "http://localhost:5000/api")
	v.SetDefault("SESSION_FILE", defaultSessionFile())
	v.SetDefault("DESK_PORT", "8085")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RELOAD_DELAY", "2s")
	v.SetDefault("BREAKER_ENABLED", true)
	v.SetDefault("BREAKER_MAX_FAILURES", 5)
	v.SetDefault("BREAKER_OPEN_TIMEOUT", "30s")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("DIGESTIVE_LEGACY_ENDPOINT", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the settings that would otherwise fail late, on the first
// API call.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("API_BASE_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API_BASE_URL must be http or https, got %q", c.APIBaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("API_BASE_URL must include a host, got %q", c.APIBaseURL)
	}
	if c.SessionFile == "" {
		return fmt.Errorf("SESSION_FILE is required")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	if c.BreakerEnabled && c.BreakerMaxFailures == 0 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must be at least 1 when BREAKER_ENABLED is true")
	}
	return nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "ehr-desk", "session.json")
}
