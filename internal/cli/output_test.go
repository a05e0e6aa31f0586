package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/ledger"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"player": "alice"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("NOT_REGISTERED", "bob is not registered", map[string]string{"player": "bob"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_REGISTERED", resp.Error.Code)
	assert.Equal(t, "bob is not registered", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(PayoutReport{Kind: "pvc"}))
	assert.Contains(t, buf.String(), "pvc: ")

	buf.Reset()
	require.NoError(t, formatter.Error("E_INVALID_ROUND", "faces 0/3", "details"))
	assert.Equal(t, "Error [E_INVALID_ROUND]: faces 0/3\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E_INVALID_ROUND", "faces 0/3", "details"))
	assert.Contains(t, buf.String(), "Details: details")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: diag,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("using database %s", "dicewager.db")

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "using database dicewager.db\n", diag.String())
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "scenario failed", errors.New("inner")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Equal(t, "outer: scenario failed: inner", wrapped.Error())
}

func TestOutputFormatter_WagerFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		exit int
		want FailureDetails
	}{
		{
			name: "not_registered",
			err:  fmt.Errorf("show: %w", ledger.ErrNotRegistered),
			code: string(engine.ErrCodeNotRegistered),
			exit: ExitFailure,
			want: FailureDetails{PlayerID: "bob"},
		},
		{
			name: "insufficient_funds",
			err:  ledger.ErrInsufficientFunds,
			code: string(engine.ErrCodeInsufficientFunds),
			exit: ExitFailure,
			want: FailureDetails{PlayerID: "bob"},
		},
		{
			name: "wager_error",
			err:  fmt.Errorf("session 3: %w", &engine.WagerError{Code: engine.ErrCodeHouseUnderfunded, Message: "house cannot cover payout", SessionID: "s-3"}),
			code: string(engine.ErrCodeHouseUnderfunded),
			exit: ExitFailure,
			want: FailureDetails{PlayerID: "bob", SessionID: "s-3"},
		},
		{
			name: "storage",
			err:  errors.New("disk I/O error"),
			code: CodeStorage,
			exit: ExitCommandError,
			want: FailureDetails{PlayerID: "bob"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.WagerFailure("bob", tt.err)
			assert.Equal(t, tt.exit, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp struct {
				Status string `json:"status"`
				Error  struct {
					Code    string         `json:"code"`
					Details FailureDetails `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.want, resp.Error.Details)
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	cause := errors.New("faces 0/3")
	err := formatter.Fail(ExitCommandError, CodeInvalidRound, "faces 0/3", cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Error [E_INVALID_ROUND]: faces 0/3\n", buf.String())
}
