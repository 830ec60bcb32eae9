// Package config loads file-based configuration for the worker.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"research-scrapers/internal/resilience/circuitbreaker"
)

// BreakerFile is the YAML document of circuit breaker definitions:
//
//	breakers:
//	  - name: fetch
//	    failure_threshold: 5
//	    success_threshold: 2
//	    timeout: 60s
//	  - name: listing
//	    kind: ratio
//	    failure_ratio: 0.7
//	    min_requests: 10
//	    interval: 1m
type BreakerFile struct {
	Breakers []BreakerDefinition `yaml:"breakers"`
}

// Breaker kinds.
const (
	// KindConsecutive trips after a run of consecutive failures. It is the default.
	KindConsecutive = "consecutive"

	// KindRatio trips on the failure ratio observed during a rolling interval.
	KindRatio = "ratio"
)

// BreakerDefinition configures one named breaker. Zero values fall back to the
// circuitbreaker package defaults.
//
// FailureThreshold and SuccessThreshold apply to consecutive breakers;
// FailureRatio, MinRequests and Interval apply to ratio breakers. For a ratio
// breaker HalfOpenMaxCalls sets the half-open request quota.
type BreakerDefinition struct {
	Name             string        `yaml:"name"`
	Kind             string        `yaml:"kind"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
	FailureRatio     float64       `yaml:"failure_ratio"`
	MinRequests      uint32        `yaml:"min_requests"`
	Interval         time.Duration `yaml:"interval"`
}

// LoadBreakerFile loads breaker definitions from a YAML file.
// The path parameter is expected to come from a trusted source (environment or hardcoded default).
func LoadBreakerFile(path string) (*BreakerFile, error) {
	// #nosec G304 -- path is provided by trusted source (environment), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read breaker file: %w", err)
	}
	return ParseBreakerFile(data)
}

// ParseBreakerFile parses and validates a YAML breaker document.
func ParseBreakerFile(data []byte) (*BreakerFile, error) {
	var file BreakerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse breaker file: %w", err)
	}
	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("breaker file validation failed: %w", err)
	}
	return &file, nil
}

func (f *BreakerFile) validate() error {
	seen := make(map[string]bool, len(f.Breakers))
	for i, def := range f.Breakers {
		if def.Name == "" {
			return fmt.Errorf("breaker %d: name is required", i)
		}
		if seen[def.Name] {
			return fmt.Errorf("breaker %q defined twice", def.Name)
		}
		seen[def.Name] = true

		if err := def.validate(); err != nil {
			return fmt.Errorf("breaker %q: %w", def.Name, err)
		}
	}
	return nil
}

func (d BreakerDefinition) validate() error {
	switch d.Kind {
	case "", KindConsecutive:
		if d.FailureRatio != 0 || d.MinRequests != 0 || d.Interval != 0 {
			return fmt.Errorf("failure_ratio, min_requests and interval require kind %q", KindRatio)
		}
		return d.Config().Validate()
	case KindRatio:
		if d.FailureThreshold != 0 || d.SuccessThreshold != 0 {
			return fmt.Errorf("failure_threshold and success_threshold require kind %q", KindConsecutive)
		}
		if d.FailureRatio < 0 || d.FailureRatio > 1 {
			return fmt.Errorf("failure ratio must be between 0 and 1, got %v", d.FailureRatio)
		}
		if d.Timeout < 0 || d.Interval < 0 {
			return fmt.Errorf("timeout and interval must be >= 0")
		}
		if d.HalfOpenMaxCalls < 0 {
			return fmt.Errorf("half-open max calls must be >= 0, got %d", d.HalfOpenMaxCalls)
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q, must be %s or %s", d.Kind, KindConsecutive, KindRatio)
	}
}

// Config converts the definition into a circuitbreaker.Config based on
// circuitbreaker.DefaultConfig.
func (d BreakerDefinition) Config() circuitbreaker.Config {
	return d.apply(circuitbreaker.DefaultConfig(d.Name))
}

// apply overlays the non-zero fields of d on cfg.
func (d BreakerDefinition) apply(cfg circuitbreaker.Config) circuitbreaker.Config {
	if d.FailureThreshold != 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if d.SuccessThreshold != 0 {
		cfg.SuccessThreshold = d.SuccessThreshold
	}
	if d.Timeout != 0 {
		cfg.Timeout = d.Timeout
	}
	if d.HalfOpenMaxCalls != 0 {
		cfg.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	return cfg
}

// applyRatio overlays the non-zero ratio fields of d on cfg.
func (d BreakerDefinition) applyRatio(cfg circuitbreaker.RatioConfig) circuitbreaker.RatioConfig {
	if d.Timeout != 0 {
		cfg.Timeout = d.Timeout
	}
	if d.HalfOpenMaxCalls != 0 {
		cfg.MaxRequests = uint32(d.HalfOpenMaxCalls) // #nosec G115 -- validated >= 0
	}
	if d.FailureRatio != 0 {
		cfg.FailureRatio = d.FailureRatio
	}
	if d.MinRequests != 0 {
		cfg.MinRequests = d.MinRequests
	}
	if d.Interval != 0 {
		cfg.Interval = d.Interval
	}
	return cfg
}

// Kind returns the kind of the named breaker, KindConsecutive when it is not
// defined or names no kind.
func (f *BreakerFile) Kind(name string) string {
	if def, ok := f.definition(name); ok && def.Kind != "" {
		return def.Kind
	}
	return KindConsecutive
}

func (f *BreakerFile) definition(name string) (BreakerDefinition, bool) {
	if f == nil {
		return BreakerDefinition{}, false
	}
	for _, def := range f.Breakers {
		if def.Name == name {
			return def, true
		}
	}
	return BreakerDefinition{}, false
}

// ApplyRatio overlays the definition named cfg.Name on a ratio breaker
// configuration. cfg is returned unchanged when no such definition exists.
func (f *BreakerFile) ApplyRatio(cfg circuitbreaker.RatioConfig) circuitbreaker.RatioConfig {
	if def, ok := f.definition(cfg.Name); ok {
		return def.applyRatio(cfg)
	}
	return cfg
}

// Apply overlays the definition named cfg.Name on cfg. cfg is returned
// unchanged when no such definition exists. A nil file has no definitions.
func (f *BreakerFile) Apply(cfg circuitbreaker.Config) circuitbreaker.Config {
	if def, ok := f.definition(cfg.Name); ok {
		return def.apply(cfg)
	}
	return cfg
}

// BreakerConfig returns the configuration of the named breaker, or
// circuitbreaker.DefaultConfig(name) when it is not defined.
func (f *BreakerFile) BreakerConfig(name string) circuitbreaker.Config {
	return f.Apply(circuitbreaker.DefaultConfig(name))
}
