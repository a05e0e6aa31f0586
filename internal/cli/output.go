package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/ledger"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failures, rejected wagers, unknown accounts
	ExitCommandError = 2 // Bad flags, unreadable config, database errors
)

// Error codes for failures that have no wager error code. Wager and ledger
// failures are reported under their engine code (NOT_REGISTERED, ...).
const (
	CodeAlreadyRegistered = "E_ALREADY_REGISTERED"
	CodeInvalidRound      = "E_INVALID_ROUND"
	CodeScenarioFailed    = "E_SCENARIO_FAILED"
	CodeStorage           = "E_STORAGE"
)

// ExitError carries the process exit code out of a command.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error body of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FailureDetails names the account and session a wager failure is about.
type FailureDetails struct {
	PlayerID  string `json:"player_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under code and returns the ExitError for the command.
func (f *OutputFormatter) Fail(exit int, code, message string, err error) error {
	_ = f.Error(code, message, nil)
	return WrapExitError(exit, message, err)
}

// WagerFailure reports a wager or ledger error about playerID. Rejections
// the player can act on (unknown account, short balance, any wager error
// code) exit 1; anything else is a storage problem and exits 2.
func (f *OutputFormatter) WagerFailure(playerID string, err error) error {
	details := FailureDetails{PlayerID: playerID}
	var code engine.ErrorCode
	var we *engine.WagerError
	switch {
	case errors.As(err, &we):
		code = we.Code
		if we.PlayerID != "" {
			details.PlayerID = we.PlayerID
		}
		details.SessionID = we.SessionID
	case errors.Is(err, ledger.ErrNotRegistered):
		code = engine.ErrCodeNotRegistered
	case errors.Is(err, ledger.ErrInsufficientFunds):
		code = engine.ErrCodeInsufficientFunds
	default:
		_ = f.Error(CodeStorage, err.Error(), details)
		return WrapExitError(ExitCommandError, "ledger error", err)
	}

	message := err.Error()
	if code == engine.ErrCodeNotRegistered {
		message = details.PlayerID + " is not registered"
	}
	_ = f.Error(string(code), message, details)
	return WrapExitError(ExitFailure, string(code), err)
}

// VerboseLog writes to ErrWriter (or Writer) only with --verbose, so JSON
// on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
