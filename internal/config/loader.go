// Package config provides configuration loading and validation for meshd.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading and validation.
type Loader struct {
	validate *validator.Validate
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		validate: validator.New(),
	}
}

// LoadFile loads and validates configuration from a YAML file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Load(data)
}

// Load parses and validates configuration from YAML bytes.
func (l *Loader) Load(data []byte) (*Config, error) {
	// Start with defaults
	cfg := Defaults()

	// Parse YAML over defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate
	if err := l.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates a configuration struct.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validate.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("config validation failed: %s", formatValidationErrors(validationErrors))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Additional semantic validations
	if err := l.validateSemantics(cfg); err != nil {
		return err
	}

	return nil
}

// validateSemantics performs additional validation beyond struct tags.
func (l *Loader) validateSemantics(cfg *Config) error {
	if err := validateNodeDomain(cfg.Node); err != nil {
		return err
	}

	for _, r := range cfg.EnvoyConfig.PortRange {
		if r.Max < r.Min {
			return fmt.Errorf("envoyConfig.portRange %d-%d is not ascending", r.Min, r.Max)
		}
	}

	if cfg.HoldTime <= 0 {
		return fmt.Errorf("holdTime must be positive, got %s", cfg.HoldTime)
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("tickInterval must be positive, got %s", cfg.TickInterval)
	}

	return nil
}

// validateNodeDomain checks that node.name ends with one configured
// domain suffix, mirroring the bus's own construction-time check.
func validateNodeDomain(node NodeConfig) error {
	for _, d := range node.Domains {
		if node.Name == d || strings.HasSuffix(node.Name, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("node.name %q does not end with any configured domain %v", node.Name, node.Domains)
}

// formatValidationErrors formats validation errors into a readable string.
func formatValidationErrors(errors validator.ValidationErrors) string {
	var result string
	for i, err := range errors {
		if i > 0 {
			result += "; "
		}
		result += fmt.Sprintf("field '%s' failed on '%s' validation", err.Field(), err.Tag())
	}
	return result
}
