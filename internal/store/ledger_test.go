package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/ledger"
	"github.com/roach88/dicewager/internal/wager"
)

func TestRegister_OnlyOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	created, err := s.Register(ctx, "alice", decimal.NewFromInt(100), "CHIP")
	if err != nil || !created {
		t.Fatalf("Register() = %v, %v; want true, nil", created, err)
	}
	created, err = s.Register(ctx, "alice", decimal.NewFromInt(999), "CHIP")
	if err != nil || created {
		t.Fatalf("second Register() = %v, %v; want false, nil", created, err)
	}

	bal, err := s.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", bal)
	}
}

func TestBalance_Unknown(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Balance(context.Background(), "ghost")
	if !errors.Is(err, ledger.ErrNotRegistered) {
		t.Errorf("Balance(ghost) error = %v, want ErrNotRegistered", err)
	}
}

func TestDebit_RefusesOverdraw(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	registerPlayer(t, s, "alice", "50")

	err := s.Debit(ctx, "alice", decimal.NewFromInt(60), ledger.Memo{Reason: ledger.ReasonEscrow})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("Debit() error = %v, want ErrInsufficientFunds", err)
	}

	bal, _ := s.Balance(ctx, "alice")
	if !bal.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance after refused debit = %s, want 50", bal)
	}
	moves, err := s.Movements(ctx, "alice")
	if err != nil {
		t.Fatalf("Movements() failed: %v", err)
	}
	if len(moves) != 0 {
		t.Errorf("refused debit left %d movements", len(moves))
	}
}

func TestDebitCredit_RecordsMovements(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	registerPlayer(t, s, "alice", "100")

	if err := s.Debit(ctx, "alice", decimal.NewFromInt(30), ledger.Memo{SessionID: "s1", Reason: ledger.ReasonEscrow}); err != nil {
		t.Fatalf("Debit() failed: %v", err)
	}
	if err := s.Credit(ctx, "alice", decimal.RequireFromString("12.5"), ledger.Memo{SessionID: "s1", Reason: ledger.ReasonSettlement}); err != nil {
		t.Fatalf("Credit() failed: %v", err)
	}

	bal, _ := s.Balance(ctx, "alice")
	if !bal.Equal(decimal.RequireFromString("82.5")) {
		t.Errorf("balance = %s, want 82.5", bal)
	}

	moves, err := s.Movements(ctx, "alice")
	if err != nil {
		t.Fatalf("Movements() failed: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("got %d movements, want 2", len(moves))
	}
	total := decimal.Zero
	for _, m := range moves {
		if m.SessionID != "s1" {
			t.Errorf("movement %s session = %q, want s1", m.ID, m.SessionID)
		}
		total = total.Add(m.Delta)
	}
	if !total.Equal(decimal.RequireFromString("-17.5")) {
		t.Errorf("sum of movements = %s, want -17.5", total)
	}
}

func TestDebit_OverdraftAccount(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	registerPlayer(t, s, "house", "10")
	s.AllowOverdraft("house")

	if err := s.Debit(ctx, "house", decimal.NewFromInt(25), ledger.Memo{Reason: ledger.ReasonSettlement}); err != nil {
		t.Fatalf("Debit() on overdraft account failed: %v", err)
	}
	bal, _ := s.Balance(ctx, "house")
	if !bal.Equal(decimal.NewFromInt(-15)) {
		t.Errorf("balance = %s, want -15", bal)
	}
}

func TestDebit_NegativeAmount(t *testing.T) {
	s := createTestStore(t)
	registerPlayer(t, s, "alice", "10")

	if err := s.Debit(context.Background(), "alice", decimal.NewFromInt(-1), ledger.Memo{}); err == nil {
		t.Error("expected error for negative debit")
	}
}

func TestDebit_ConcurrentNeverOverdraws(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	registerPlayer(t, s, "alice", "100")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Debit(ctx, "alice", decimal.NewFromInt(30), ledger.Memo{Reason: ledger.ReasonEscrow}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 3 {
		t.Errorf("%d debits succeeded, want 3", ok)
	}
	bal, _ := s.Balance(ctx, "alice")
	if !bal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("balance = %s, want 10", bal)
	}
}

func TestRecordOutcome_UpdatesStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	registerPlayer(t, s, "alice", "0")

	steps := []struct {
		outcome wager.Outcome
		roll    int
	}{
		{wager.OutcomeWin, 5},
		{wager.OutcomeJackpot, 6},
		{wager.OutcomeLoss, 2},
	}
	for _, st := range steps {
		if err := s.RecordOutcome(ctx, "alice", st.outcome, st.roll); err != nil {
			t.Fatalf("RecordOutcome(%s) failed: %v", st.outcome, err)
		}
	}

	p, err := s.Player(ctx, "alice")
	if err != nil {
		t.Fatalf("Player() failed: %v", err)
	}
	want := wager.PlayerStats{Wins: 2, Losses: 1, LossStreak: 1, LastRoll: 2}
	if p.Stats != want {
		t.Errorf("stats = %+v, want %+v", p.Stats, want)
	}
	if p.Currency != "CHIP" {
		t.Errorf("currency = %q, want CHIP", p.Currency)
	}
}

func TestRecordOutcome_Unknown(t *testing.T) {
	s := createTestStore(t)

	err := s.RecordOutcome(context.Background(), "ghost", wager.OutcomeWin, 3)
	if !errors.Is(err, ledger.ErrNotRegistered) {
		t.Errorf("error = %v, want ErrNotRegistered", err)
	}
}

func TestDeposit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	registerPlayer(t, s, "alice", "1")

	if err := s.Deposit(ctx, "alice", decimal.NewFromInt(9)); err != nil {
		t.Fatalf("Deposit() failed: %v", err)
	}
	bal, _ := s.Balance(ctx, "alice")
	if !bal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("balance = %s, want 10", bal)
	}
	moves, _ := s.Movements(ctx, "alice")
	if len(moves) != 1 || moves[0].Reason != ledger.ReasonDeposit {
		t.Errorf("movements = %+v, want one deposit", moves)
	}
}
