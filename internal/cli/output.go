package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0 // run finished, whatever its outcome
	ExitFailure      = 1 // run started but could not continue (token refused, send log unwritable)
	ExitCommandError = 2 // refused before the first send (env file, mounts, flags)
)

// ExitError carries the exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope written with --format json.
type CLIResponse struct {
	Status  string    `json:"status"` // "ok" or "error"
	Command string    `json:"command,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *CLIError `json:"error,omitempty"`
}

// CLIError describes a refused or failed command. Code is one of the E0xx
// constants; ExitCode is the process status that follows.
type CLIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ExitCode int    `json:"exit_code,omitempty"`
	Details  any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or JSON envelopes.
type OutputFormatter struct {
	Format  string
	Command string
	Writer  io.Writer
	// Diag receives device-code prompts and verbose notes so they never mix
	// with JSON on Writer. Defaults to Writer.
	Diag    io.Writer
	Verbose bool
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	resp.Command = f.Command
	return json.NewEncoder(f.Writer).Encode(resp)
}

// Success writes data.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error report. Details are shown in text mode only with
// --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.report(&CLIError{Code: code, Message: message, Details: details})
}

// Fail reports err under code and returns err, so commands can end with
// `return out.Fail(CodeConfig, err)`.
func (f *OutputFormatter) Fail(code string, err error) error {
	_ = f.report(&CLIError{Code: code, Message: err.Error(), ExitCode: GetExitCode(err)})
	return err
}

func (f *OutputFormatter) report(e *CLIError) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "error", Error: e})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", e.Details)
	}
	return nil
}

// Notef writes a note to Diag when --verbose is set.
func (f *OutputFormatter) Notef(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.Diagnostics(), format+"\n", args...)
	}
}

// Diagnostics returns Diag, or Writer when unset.
func (f *OutputFormatter) Diagnostics() io.Writer {
	if f.Diag != nil {
		return f.Diag
	}
	return f.Writer
}
