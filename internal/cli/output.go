// Package cli implements the cu command tree: read, write and cache
// inspection subcommands over an Evaluator, grounded on roach88-nysm's
// internal/cli package (cobra root + subcommands, a shared
// CLIResponse/ExitError output shape carried from there verbatim).
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for cu subcommands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // the operation ran but reported a failed step
	ExitCommandError = 2 // the command itself could not run (bad flags, IO error)
)

// ExitError carries a specific process exit code out of a RunE.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError builds an ExitError with no wrapped cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError builds an ExitError wrapping an underlying cause.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the process exit code from err, defaulting to
// ExitFailure for any error that isn't an *ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the standard JSON response envelope for --format json.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error payload nested in a failed CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResponse{Status: "ok", Data: data})
}

func writeJSONError(w io.Writer, code, message string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResponse{Status: "error", Error: &CLIError{Code: code, Message: message}})
}
