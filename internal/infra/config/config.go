package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Frame   FrameConfig   `yaml:"frame"`
	Store   StoreConfig   `yaml:"store"`
	Element ElementConfig `yaml:"element"`
	Logger  LoggerConfig  `yaml:"logger"`
}

// ServerConfig holds payments API server settings.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	BaseURL string `yaml:"base_url"` // public base for session URLs
	APIKey  string `yaml:"api_key"`  // read from ELEMENTS_API_KEY when empty

	CORSOrigins []string `yaml:"cors_origins,omitempty"`
	RateLimit   float64  `yaml:"rate_limit"` // requests/sec, 0 = disabled
	RateBurst   int      `yaml:"rate_burst"`
}

// FrameConfig holds the embedded form frame host settings.
type FrameConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory" or "sqlite"
	Path    string `yaml:"path"`    // sqlite file path

	SessionTTL      time.Duration `yaml:"session_ttl"`      // 0 = sessions never expire
	JanitorSchedule string        `yaml:"janitor_schedule"` // cron expression
}

// ElementConfig holds embedded element protocol settings.
type ElementConfig struct {
	SubmitTimeout   time.Duration `yaml:"submit_timeout"`
	ValidateTimeout time.Duration `yaml:"validate_timeout"`
	MountGrace      time.Duration `yaml:"mount_grace"`
	TestCards       bool          `yaml:"test_cards"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			BaseURL:   "http://localhost:8080",
			RateLimit: 0,
			RateBurst: 20,
		},
		Frame: FrameConfig{
			Addr: ":8081",
		},
		Store: StoreConfig{
			Backend:         "memory",
			Path:            "./data/elements.db",
			SessionTTL:      24 * time.Hour,
			JanitorSchedule: "@every 1h",
		},
		Element: ElementConfig{
			SubmitTimeout:   10 * time.Second,
			ValidateTimeout: 5 * time.Second,
			MountGrace:      3 * time.Second,
			TestCards:       false,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error; defaults plus env overrides are used instead.
// Callers that serve traffic should run the result through Validate;
// binaries that only consume a section can use it as loaded.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// ApplyEnvOverrides maps ELEMENTS_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ELEMENTS_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ELEMENTS_SERVER_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("ELEMENTS_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ELEMENTS_SERVER_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Server.RateLimit = f
		}
	}
	if v := os.Getenv("ELEMENTS_FRAME_ADDR"); v != "" {
		cfg.Frame.Addr = v
	}
	if v := os.Getenv("ELEMENTS_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("ELEMENTS_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("ELEMENTS_STORE_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Store.SessionTTL = d
		}
	}
	if v := os.Getenv("ELEMENTS_ELEMENT_TEST_CARDS"); v == "true" {
		cfg.Element.TestCards = true
	}
	if v := os.Getenv("ELEMENTS_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ELEMENTS_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
}
