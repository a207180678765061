package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Validation bounds.
const (
	MinUpdateInterval = 10 * time.Millisecond
	MaxHistorySize    = 100_000
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the results of a configuration validation.
type ValidationResult struct {
	// Errors contains all validation errors found.
	Errors []ValidationError
	// Warnings contains values that work but are probably mistakes.
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// Error returns a combined error wrapping ErrInvalidConfig, or nil.
func (vr *ValidationResult) Error() error {
	if len(vr.Errors) == 0 {
		return nil
	}
	messages := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		messages = append(messages, e.Error())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(messages, "; "))
}

// AddError adds a validation error.
func (vr *ValidationResult) AddError(field, format string, args ...any) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// AddWarning adds a validation warning.
func (vr *ValidationResult) AddWarning(field, format string, args ...any) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Check validates every field and collects all problems.
func (c *Config) Check() *ValidationResult {
	result := &ValidationResult{}

	if c.UpdateInterval < MinUpdateInterval {
		result.AddError("update_interval", "must be at least %v, got %v", MinUpdateInterval, c.UpdateInterval)
	} else if c.UpdateInterval > time.Hour {
		result.AddWarning("update_interval", "unusually long interval %v", c.UpdateInterval)
	}
	if c.HistorySize < 1 || c.HistorySize > MaxHistorySize {
		result.AddError("history_size", "must be between 1 and %d, got %d", MaxHistorySize, c.HistorySize)
	}
	if c.ProcRoot == "" {
		result.AddError("proc_root", "must not be empty")
	}
	if c.PasswdPath == "" {
		result.AddError("passwd_path", "must not be empty")
	}
	if c.UserCacheTTL <= 0 {
		result.AddError("user_cache_ttl", "must be positive, got %v", c.UserCacheTTL)
	}
	if c.DeadLimit < 0 {
		result.AddError("dead_limit", "must be non-negative, got %d", c.DeadLimit)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.AddError("log_level", "unknown level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		result.AddError("log_format", "unknown format %q (expected text or json)", c.LogFormat)
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		result.AddError("listen", "invalid address %q: %v", c.Listen, err)
	}

	return result
}

// Validate returns an error wrapping ErrInvalidConfig listing every invalid
// field, or nil.
func (c *Config) Validate() error {
	return c.Check().Error()
}
