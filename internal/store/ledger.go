package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/ledger"
	"github.com/roach88/dicewager/internal/wager"
)

var _ ledger.Ledger = (*Store)(nil)

// Register creates an account. Returns false if it already existed, in
// which case nothing changes.
func (s *Store) Register(ctx context.Context, playerID string, balance decimal.Decimal, currency string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, balance, currency, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, playerID, balance.String(), currency, s.now().Unix())
	if err != nil {
		return false, fmt.Errorf("register %s: %w", playerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register %s: %w", playerID, err)
	}
	return n == 1, nil
}

// AllowOverdraft flags an account (the house) as allowed to go negative.
func (s *Store) AllowOverdraft(playerID string) {
	if _, err := s.db.Exec(`UPDATE players SET overdraft = 1 WHERE id = ?`, playerID); err != nil {
		slog.Error("allow overdraft failed", "player", playerID, "error", err)
	}
}

// Player implements ledger.Ledger.
func (s *Store) Player(ctx context.Context, playerID string) (wager.Player, error) {
	var p wager.Player
	err := s.db.QueryRowContext(ctx, `
		SELECT id, balance, currency, wins, losses, ties, win_streak, loss_streak, last_roll
		FROM players WHERE id = ?
	`, playerID).Scan(
		&p.ID, &p.Balance, &p.Currency,
		&p.Stats.Wins, &p.Stats.Losses, &p.Stats.Ties,
		&p.Stats.WinStreak, &p.Stats.LossStreak, &p.Stats.LastRoll,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return wager.Player{}, fmt.Errorf("%s: %w", playerID, ledger.ErrNotRegistered)
	}
	if err != nil {
		return wager.Player{}, unavailable("read player", err)
	}
	return p, nil
}

// Balance implements ledger.Ledger.
func (s *Store) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Balance, nil
}

// Debit implements ledger.Ledger.
func (s *Store) Debit(ctx context.Context, playerID string, amount decimal.Decimal, memo ledger.Memo) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit %s: negative amount %s", playerID, amount)
	}
	return s.move(ctx, playerID, amount.Neg(), memo)
}

// Credit implements ledger.Ledger.
func (s *Store) Credit(ctx context.Context, playerID string, amount decimal.Decimal, memo ledger.Memo) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit %s: negative amount %s", playerID, amount)
	}
	return s.move(ctx, playerID, amount, memo)
}

// Deposit credits an account outside any session.
func (s *Store) Deposit(ctx context.Context, playerID string, amount decimal.Decimal) error {
	return s.Credit(ctx, playerID, amount, ledger.Memo{Reason: ledger.ReasonDeposit})
}

// move applies a signed delta and appends the movement, in one transaction.
func (s *Store) move(ctx context.Context, playerID string, delta decimal.Decimal, memo ledger.Memo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		balance   decimal.Decimal
		overdraft bool
	)
	err = tx.QueryRowContext(ctx, `SELECT balance, overdraft FROM players WHERE id = ?`, playerID).
		Scan(&balance, &overdraft)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", playerID, ledger.ErrNotRegistered)
	}
	if err != nil {
		return unavailable("read balance", err)
	}

	next := balance.Add(delta)
	if next.IsNegative() && delta.IsNegative() && !overdraft {
		return fmt.Errorf("%s: %w", playerID, ledger.ErrInsufficientFunds)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE players SET balance = ? WHERE id = ?`, next.String(), playerID); err != nil {
		return unavailable("update balance", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, player_id, delta, reason, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.Must(uuid.NewV7()).String(), playerID, delta.String(), memo.Reason, memo.SessionID, s.now().Unix()); err != nil {
		return unavailable("append entry", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// RecordOutcome implements ledger.Ledger.
func (s *Store) RecordOutcome(ctx context.Context, playerID string, outcome wager.Outcome, roll int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback()

	var st wager.PlayerStats
	err = tx.QueryRowContext(ctx, `
		SELECT wins, losses, ties, win_streak, loss_streak, last_roll FROM players WHERE id = ?
	`, playerID).Scan(&st.Wins, &st.Losses, &st.Ties, &st.WinStreak, &st.LossStreak, &st.LastRoll)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", playerID, ledger.ErrNotRegistered)
	}
	if err != nil {
		return unavailable("read stats", err)
	}

	st = st.Apply(outcome, roll)
	if _, err := tx.ExecContext(ctx, `
		UPDATE players
		SET wins = ?, losses = ?, ties = ?, win_streak = ?, loss_streak = ?, last_roll = ?
		WHERE id = ?
	`, st.Wins, st.Losses, st.Ties, st.WinStreak, st.LossStreak, st.LastRoll, playerID); err != nil {
		return unavailable("update stats", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// Movement is one row of the movement log.
type Movement struct {
	ID        string          `json:"id"`
	PlayerID  string          `json:"player_id"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason"`
	SessionID string          `json:"session_id,omitempty"`
}

// Movements returns a player's movement log, oldest first.
func (s *Store) Movements(ctx context.Context, playerID string) ([]Movement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, delta, reason, session_id
		FROM ledger_entries
		WHERE player_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	out := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.PlayerID, &m.Delta, &m.Reason, &m.SessionID); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return out, nil
}

// unavailable classifies a storage failure as retryable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ledger.ErrUnavailable, err)
}
