package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dicewager/internal/config"
	"github.com/roach88/dicewager/internal/dice"
	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/testutil"
	"github.com/roach88/dicewager/internal/wager"
)

func simRequest(stake int64, p wager.PowerUp) engine.Request {
	return engine.Request{
		PlayerID:   simPlayer,
		Mode:       wager.ModePvC,
		Stake:      decimal.NewFromInt(stake),
		PowerUp:    p,
		Difficulty: wager.DifficultyNormal,
	}
}

func TestSimulate_ScriptedDice(t *testing.T) {
	// Win 5-3, loss 1-6, tie 4-4.
	roller := testutil.NewScriptedDice(5, 1, 4).QueueBiased(3, 6, 4)

	report, err := simulate(context.Background(), simulation{
		cfg:      config.Default(),
		roller:   roller,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions: 3,
		request:  simRequest(100, wager.PowerUpNone),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Sessions)
	assert.Equal(t, 1, report.Wins)
	assert.Equal(t, 1, report.Losses)
	assert.Equal(t, 1, report.Ties)
	assert.Zero(t, report.Aborted)
	assert.True(t, decimal.NewFromInt(300).Equal(report.Escrowed), report.Escrowed.String())
	// -80 on the win, +100 on the loss, 0 on the tie.
	assert.True(t, decimal.NewFromInt(20).Equal(report.HouseDelta), report.HouseDelta.String())
	assert.True(t, decimal.NewFromInt(20).Equal(report.Commission), report.Commission.String())
	assert.Equal(t, "0.0667", report.HouseEdge.String())

	rolls, biased, _ := roller.Remaining()
	assert.Zero(t, rolls)
	assert.Zero(t, biased)
}

func TestSimulate_RerollAnswered(t *testing.T) {
	// 2 is rerolled into a 5; the bot rolls 3.
	roller := testutil.NewScriptedDice(2, 5).QueueBiased(3)

	report, err := simulate(context.Background(), simulation{
		cfg:      config.Default(),
		roller:   roller,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions: 1,
		request:  simRequest(100, wager.PowerUpReroll),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Wins)
	// Stake plus the 10% reroll cost.
	assert.True(t, decimal.NewFromInt(110).Equal(report.Escrowed), report.Escrowed.String())
}

func TestSimulate_SeededRun(t *testing.T) {
	report, err := simulate(context.Background(), simulation{
		cfg:      config.Default(),
		roller:   dice.NewSeeded(42),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions: 200,
		request:  simRequest(100, wager.PowerUpNone),
	})
	require.NoError(t, err)

	assert.Equal(t, 200, report.Sessions)
	assert.Equal(t, 200, report.Wins+report.Losses+report.Ties+report.Jackpots)
	assert.Zero(t, report.Aborted)
	assert.True(t, decimal.NewFromInt(20000).Equal(report.Escrowed))
}

func TestSimulateCommand(t *testing.T) {
	out, err := execute(t, "--format", "json", "simulate", "--sessions", "20", "--seed", "7", "--difficulty", "easy")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   SimulationReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 20, resp.Data.Sessions)

	out, err = execute(t, "simulate", "--sessions", "5", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Sessions: 5 (0 aborted)")
	assert.Contains(t, out, "House edge: ")
}

func TestSimulateCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero_sessions", []string{"--sessions", "0"}, "--sessions must be positive"},
		{"bad_stake", []string{"--stake", "x"}, "invalid stake"},
		{"bad_power_up", []string{"--power-up", "laser"}, "invalid power-up"},
		{"bad_difficulty", []string{"--difficulty", "brutal"}, "invalid difficulty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"simulate"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestSimulateCommand_RejectedWager(t *testing.T) {
	out, err := execute(t, "simulate", "--sessions", "3", "--stake", "0", "--seed", "7")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [INVALID_REQUEST]")
}
