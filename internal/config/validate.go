package config

import (
	"fmt"
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

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateStore(cfg, ve)
	validateEdge(cfg, ve)
	validateDiscovery(cfg, ve)
	validateUI(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not a known level", cfg.Logger.Level)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q must be noop or stdout", cfg.Tracer.Exporter)
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path is required")
	}
	if cfg.Profile.Path == "" {
		ve.Add("profile.path is required")
	}
}

func validateEdge(cfg *Config, ve *ValidationError) {
	if cfg.Edge.ConnectTimeout < 0 {
		ve.Add("edge.connect_timeout must not be negative")
	}
	if cfg.Edge.Breaker.Timeout < 0 || cfg.Edge.Breaker.Interval < 0 {
		ve.Add("edge.breaker durations must not be negative")
	}
}

func validateDiscovery(cfg *Config, ve *ValidationError) {
	if !cfg.Discovery.MDNS {
		return
	}
	if !strings.HasPrefix(cfg.Discovery.Service, "_") || !strings.Contains(cfg.Discovery.Service, "._") {
		ve.Add("discovery.service %q must look like _name._tcp", cfg.Discovery.Service)
	}
	if cfg.Discovery.ScanTimeout <= 0 {
		ve.Add("discovery.scan_timeout must be positive")
	}
}

func validateUI(cfg *Config, ve *ValidationError) {
	switch cfg.UI.Order {
	case "", "completion", "bookmark":
	default:
		ve.Add("ui.order %q must be completion or bookmark", cfg.UI.Order)
	}
}
