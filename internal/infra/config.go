package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultServiceURL is the production endpoint of the conversion service.
	DefaultServiceURL = "https://xmr.to"

	APIVersionV2 = "v2"
	APIVersionV3 = "v3"

	// DefaultAPIVersion is the latest supported API version.
	DefaultAPIVersion = APIVersionV3
)

// Config holds all application settings. Resolution order is
// CLI flag > environment variable > config file > built-in default;
// the file and env layers are applied here, flags in cmd.
type Config struct {
	API struct {
		URL        string `yaml:"url"`
		Version    string `yaml:"version"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"api"`

	Follow struct {
		IntervalSec       int `yaml:"interval_sec"`
		DeadlineSec       int `yaml:"deadline_sec"`
		RetryAttempts     int `yaml:"retry_attempts"`
		RetryBaseDelaySec int `yaml:"retry_base_delay_sec"`
	} `yaml:"follow"`

	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"journal"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.API.URL = DefaultServiceURL
	cfg.API.Version = DefaultAPIVersion
	cfg.API.TimeoutSec = 30
	cfg.Follow.IntervalSec = 3
	cfg.Follow.DeadlineSec = 0 // No overall deadline unless asked for.
	cfg.Follow.RetryAttempts = 3
	cfg.Follow.RetryBaseDelaySec = 1
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig builds the configuration from defaults, an optional yaml
// file and environment variables. An empty path skips the file layer.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.API.URL == "" || (!hasPrefix(c.API.URL, "http://") && !hasPrefix(c.API.URL, "https://")) {
		return fmt.Errorf("invalid service URL: %s", c.API.URL)
	}
	if c.API.Version != APIVersionV2 && c.API.Version != APIVersionV3 {
		return fmt.Errorf("API version %s is not supported", c.API.Version)
	}
	if c.API.TimeoutSec <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Follow.IntervalSec <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Follow.RetryAttempts <= 0 {
		return fmt.Errorf("retry attempts must be positive")
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies environment variables over file/default values.
// The variable names match the original wrapper so existing setups keep
// working.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("XMRTO_URL"); url != "" {
		cfg.API.URL = url
	}
	if version := os.Getenv("API_VERSION"); version != "" {
		cfg.API.Version = version
	}
	if level := os.Getenv("XMRTO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if path := os.Getenv("XMRTO_JOURNAL"); path != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = path
	}
}
