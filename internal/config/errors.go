package config

import (
	"fmt"
	"strings"
)

// ConfigurationError is a fatal startup error: the process must not serve
// requests with this configuration.
type ConfigurationError struct {
	Setting     string   // Variable (without ENV_STATE prefix) at fault
	Message     string   // Human-readable error message
	Suggestions []string // Actionable suggestions to fix the error
	Err         error    // Underlying cause, if any
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	if ce.Setting == "" {
		return "configuration error: " + ce.Message
	}
	return fmt.Sprintf("configuration error in %s: %s", ce.Setting, ce.Message)
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}

// DetailedError returns a detailed error message with all context
func (ce *ConfigurationError) DetailedError() string {
	parts := []string{ce.Error()}
	if ce.Err != nil {
		parts = append(parts, fmt.Sprintf("  Details: %v", ce.Err))
	}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}
	return strings.Join(parts, "\n")
}
