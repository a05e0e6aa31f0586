package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/wager"
)

// Entry is one recorded balance movement.
type Entry struct {
	PlayerID string
	Delta    decimal.Decimal
	Memo     Memo
}

// Memory is an in-process Ledger. Safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	players   map[string]*wager.Player
	overdraft map[string]bool
	entries   []Entry
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		players:   make(map[string]*wager.Player),
		overdraft: make(map[string]bool),
	}
}

// Register creates or replaces an account.
func (m *Memory) Register(playerID string, balance decimal.Decimal, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[playerID] = &wager.Player{ID: playerID, Balance: balance, Currency: currency}
}

// AllowOverdraft lets the account go below zero.
func (m *Memory) AllowOverdraft(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overdraft[playerID] = true
}

// Player implements Ledger.
func (m *Memory) Player(_ context.Context, playerID string) (wager.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return wager.Player{}, fmt.Errorf("%s: %w", playerID, ErrNotRegistered)
	}
	return *p, nil
}

// Balance implements Ledger.
func (m *Memory) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	p, err := m.Player(ctx, playerID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Balance, nil
}

// Debit implements Ledger.
func (m *Memory) Debit(_ context.Context, playerID string, amount decimal.Decimal, memo Memo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return fmt.Errorf("%s: %w", playerID, ErrNotRegistered)
	}
	if amount.IsNegative() {
		return fmt.Errorf("debit %s: negative amount %s", playerID, amount)
	}
	if p.Balance.LessThan(amount) && !m.overdraft[playerID] {
		return fmt.Errorf("%s: %w", playerID, ErrInsufficientFunds)
	}
	p.Balance = p.Balance.Sub(amount)
	m.entries = append(m.entries, Entry{PlayerID: playerID, Delta: amount.Neg(), Memo: memo})
	return nil
}

// Credit implements Ledger.
func (m *Memory) Credit(_ context.Context, playerID string, amount decimal.Decimal, memo Memo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return fmt.Errorf("%s: %w", playerID, ErrNotRegistered)
	}
	if amount.IsNegative() {
		return fmt.Errorf("credit %s: negative amount %s", playerID, amount)
	}
	p.Balance = p.Balance.Add(amount)
	m.entries = append(m.entries, Entry{PlayerID: playerID, Delta: amount, Memo: memo})
	return nil
}

// RecordOutcome implements Ledger.
func (m *Memory) RecordOutcome(_ context.Context, playerID string, outcome wager.Outcome, roll int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return fmt.Errorf("%s: %w", playerID, ErrNotRegistered)
	}
	p.Stats = p.Stats.Apply(outcome, roll)
	return nil
}

// Entries returns a copy of every recorded movement.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Total returns the sum of all balances.
func (m *Memory) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, p := range m.players {
		total = total.Add(p.Balance)
	}
	return total
}
