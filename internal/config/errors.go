package config

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a config file that could not be read or parsed.
type ConfigurationError struct {
	FilePath  string
	ErrorType string // "io" or "parse"
	Message   string
	Hint      string
	Err       error
}

func (ce ConfigurationError) Error() string {
	if ce.FilePath == "" {
		return fmt.Sprintf("[%s] %s", ce.ErrorType, ce.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", ce.ErrorType, ce.FilePath, ce.Message)
}

func (ce ConfigurationError) Unwrap() error { return ce.Err }

// DetailedError renders the error for the CLI, one fact per line.
func (ce ConfigurationError) DetailedError() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Configuration Error: %s", ce.Message)
	if ce.FilePath != "" {
		fmt.Fprintf(&b, "\n  File: %s", ce.FilePath)
	}
	if ce.Err != nil {
		fmt.Fprintf(&b, "\n  Cause: %v", ce.Err)
	}
	if ce.Hint != "" {
		fmt.Fprintf(&b, "\n  Hint: %s", ce.Hint)
	}
	return b.String()
}
