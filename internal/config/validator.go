package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateState(&cfg.State)
	v.validateEngine(&cfg.Engine)
	v.validateHTTP(&cfg.HTTP)
	v.validateWorkflows(&cfg.Workflows)
	v.validateCredentials(cfg.Credentials)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.CORS {
		for i, origin := range cfg.AllowedOrigins {
			if strings.TrimSpace(origin) == "" {
				v.addError(fmt.Sprintf("server.allowed_origins[%d]", i), origin, "must not be empty")
			}
		}
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	if cfg.Path == "" {
		v.addError("state.path", cfg.Path, "path required")
		return
	}
	if cfg.Path != ":memory:" && !isValidPath(cfg.Path) {
		v.addError("state.path", cfg.Path, "invalid file path")
	}
}

func (v *Validator) validateEngine(cfg *EngineConfig) {
	if cfg.MaxParallel < 1 {
		v.addError("engine.max_parallel", cfg.MaxParallel, "must be at least 1")
	}
	v.validateDuration("engine.node_timeout", cfg.NodeTimeout)
	v.validateDuration("engine.run_timeout", cfg.RunTimeout)
}

func (v *Validator) validateHTTP(cfg *HTTPConfig) {
	v.validateDuration("http.timeout", cfg.Timeout)
	if cfg.MaxBodyBytes < 0 {
		v.addError("http.max_body_bytes", cfg.MaxBodyBytes, "must be non-negative")
	}
}

func (v *Validator) validateWorkflows(cfg *WorkflowsConfig) {
	if cfg.Watch && cfg.Dir == "" {
		v.addError("workflows.dir", cfg.Dir, "directory required when watch is enabled")
	}
}

func (v *Validator) validateCredentials(creds map[string]map[string]string) {
	for ref, values := range creds {
		if len(values) == 0 {
			v.addError("credentials."+ref, values, "must define at least one key")
		}
	}
}

// validateDuration accepts an empty value as "disabled".
func (v *Validator) validateDuration(field, value string) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration format")
		return
	}
	if d < 0 {
		v.addError(field, value, "must be non-negative")
	}
}

// isValidPath checks if a path is potentially valid.
func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
