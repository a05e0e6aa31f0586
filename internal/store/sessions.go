package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/wager"
)

// ErrSessionNotFound is returned when no archived session has the ID.
var ErrSessionNotFound = errors.New("session not found")

// ArchiveSession writes or replaces a session's final snapshot.
func (s *Store) ArchiveSession(ctx context.Context, snap wager.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("archive session %s: marshal: %w", snap.SessionID, err)
	}

	var resolvedAt int64
	if !snap.ResolvedAt.IsZero() {
		resolvedAt = snap.ResolvedAt.Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, parent_id, mode, state, outcome, pot, commission, house_delta, snapshot, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			outcome = excluded.outcome,
			pot = excluded.pot,
			commission = excluded.commission,
			house_delta = excluded.house_delta,
			snapshot = excluded.snapshot,
			resolved_at = excluded.resolved_at
	`,
		snap.SessionID,
		snap.ParentID,
		string(snap.Mode),
		string(snap.State),
		string(snap.Outcome),
		snap.Pot.String(),
		snap.Commission.String(),
		snap.HouseDelta.String(),
		string(body),
		snap.CreatedAt.Unix(),
		resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", snap.SessionID, err)
	}
	return nil
}

// LoadSession reads an archived snapshot.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (wager.Snapshot, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return wager.Snapshot{}, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return wager.Snapshot{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var snap wager.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return wager.Snapshot{}, fmt.Errorf("load session %s: unmarshal: %w", sessionID, err)
	}
	return snap, nil
}

// HouseSummary aggregates archived sessions.
type HouseSummary struct {
	Sessions   int             `json:"sessions"`
	Commission decimal.Decimal `json:"commission"`
	HouseDelta decimal.Decimal `json:"house_delta"`
}

// Summarize totals commission and house delta over archived sessions.
func (s *Store) Summarize(ctx context.Context) (HouseSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT commission, house_delta FROM sessions`)
	if err != nil {
		return HouseSummary{}, fmt.Errorf("summarize sessions: %w", err)
	}
	defer rows.Close()

	sum := HouseSummary{Commission: decimal.Zero, HouseDelta: decimal.Zero}
	for rows.Next() {
		var commission, house decimal.Decimal
		if err := rows.Scan(&commission, &house); err != nil {
			return HouseSummary{}, fmt.Errorf("scan session totals: %w", err)
		}
		sum.Sessions++
		sum.Commission = sum.Commission.Add(commission)
		sum.HouseDelta = sum.HouseDelta.Add(house)
	}
	if err := rows.Err(); err != nil {
		return HouseSummary{}, fmt.Errorf("iterate sessions: %w", err)
	}
	return sum, nil
}

// Children returns the IDs of sessions continued from parentID.
func (s *Store) Children(ctx context.Context, parentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sessions WHERE parent_id = ? ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
