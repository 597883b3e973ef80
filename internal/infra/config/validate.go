package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing callers to
// inspect all issues at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateStore(cfg, ve)
	validateElement(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	}
	if cfg.Server.BaseURL == "" {
		ve.Add("server.base_url must not be empty")
	} else if u, err := url.Parse(cfg.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("server.base_url %q is not a valid absolute URL", cfg.Server.BaseURL)
	}
	if cfg.Server.APIKey == "" {
		ve.Add("server.api_key must be set (or ELEMENTS_API_KEY)")
	}
	if cfg.Server.RateLimit < 0 {
		ve.Add("server.rate_limit must be >= 0")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst <= 0 {
		ve.Add("server.rate_burst must be > 0 when rate limiting is enabled")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	switch cfg.Store.Backend {
	case "memory", "sqlite":
	default:
		ve.Add("store.backend %q is not supported (memory, sqlite)", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		ve.Add("store.path must be set for the sqlite backend")
	}
	if cfg.Store.SessionTTL > 0 && cfg.Store.JanitorSchedule == "" {
		ve.Add("store.janitor_schedule must be set when session_ttl is enabled")
	}
}

func validateElement(cfg *Config, ve *ValidationError) {
	if cfg.Element.SubmitTimeout <= 0 {
		ve.Add("element.submit_timeout must be > 0")
	}
	if cfg.Element.ValidateTimeout <= 0 {
		ve.Add("element.validate_timeout must be > 0")
	}
	if cfg.Element.MountGrace <= 0 {
		ve.Add("element.mount_grace must be > 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		ve.Add("logger.level %q is not a valid level", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is not a valid format (text, json)", cfg.Logger.Format)
	}
}
