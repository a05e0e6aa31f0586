package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dicewager/internal/ledger"
	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/wager"
)

// Request asks to play one session.
type Request struct {
	PlayerID   string           `json:"player_id"`
	Mode       wager.Mode       `json:"mode"`
	Stake      decimal.Decimal  `json:"stake"`
	PowerUp    wager.PowerUp    `json:"power_up"`
	Difficulty wager.Difficulty `json:"difficulty"`
}

// Admission is the outcome of Enqueue.
type Admission string

const (
	AdmissionMatched  Admission = "matched"
	AdmissionWaiting  Admission = "waiting"
	AdmissionRejected Admission = "rejected"
)

// Result is returned by Enqueue and Confirm.
type Result struct {
	Admission Admission     `json:"status"`
	SessionID string        `json:"session_id,omitempty"`
	Reason    ErrorCode     `json:"reason,omitempty"`
	Remaining time.Duration `json:"remaining,omitempty"`
}

func rejected(err error) Result {
	r := Result{Admission: AdmissionRejected, Reason: CodeOf(err)}
	if rem, ok := RemainingCooldown(err); ok {
		r.Remaining = rem
	}
	return r
}

// NormalizePlayerID trims and NFC-normalizes an external player ID, so the
// same name typed on different clients maps to one account.
func NormalizePlayerID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// normalize validates a request and fills defaults.
func (e *Engine) normalize(req Request) (Request, error) {
	req.PlayerID = NormalizePlayerID(req.PlayerID)
	if req.PlayerID == "" {
		return req, newError(ErrCodeInvalidRequest, "player id is required")
	}
	if req.PlayerID == e.houseID || req.PlayerID == wager.BotPlayerID {
		return req, newError(ErrCodeInvalidRequest, "player id %q is reserved", req.PlayerID).forPlayer(req.PlayerID)
	}

	mode, err := wager.ParseMode(string(req.Mode))
	if err != nil {
		return req, newError(ErrCodeInvalidRequest, "%v", err).forPlayer(req.PlayerID)
	}
	powerUp, err := wager.ParsePowerUp(string(req.PowerUp))
	if err != nil {
		return req, newError(ErrCodeInvalidRequest, "%v", err).forPlayer(req.PlayerID)
	}
	diff, err := wager.ParseDifficulty(string(req.Difficulty))
	if err != nil {
		return req, newError(ErrCodeInvalidRequest, "%v", err).forPlayer(req.PlayerID)
	}
	if mode == wager.ModePvP {
		diff = wager.DifficultyNormal
	}
	req.Mode, req.PowerUp, req.Difficulty = mode, powerUp, diff

	if !req.Stake.IsPositive() {
		return req, newError(ErrCodeInvalidRequest, "stake must be positive").forPlayer(req.PlayerID)
	}
	if !req.Stake.Equal(req.Stake.RoundFloor(e.rules.MinorUnits)) {
		return req, newError(ErrCodeInvalidRequest, "stake %s has more than %d decimal places", req.Stake, e.rules.MinorUnits).forPlayer(req.PlayerID)
	}
	return req, nil
}

// Enqueue admits a player.
//
// PvC sessions start at once. PvP requests either complete a pair with the
// oldest waiting entry of the same stake (matched) or wait in the queue
// (waiting); the waiting player learns of the match through the Notifier.
// Rejections return a Result with Admission rejected and a *WagerError.
func (e *Engine) Enqueue(ctx context.Context, req Request) (Result, error) {
	req, err := e.normalize(req)
	if err != nil {
		return rejected(err), err
	}
	if e.isClosed() {
		err := newError(ErrCodeClosed, "engine is shutting down")
		return rejected(err), err
	}
	pid := req.PlayerID

	player, err := e.ledger.Player(ctx, pid)
	if err != nil {
		werr := fromLedger(err, pid)
		return rejected(werr), werr
	}

	if rem := e.cooldowns.Remaining(pid, req.Stake); rem > 0 {
		werr := newError(ErrCodeCooldownActive, "wait before playing again").forPlayer(pid)
		werr.Remaining = rem
		return rejected(werr), werr
	}

	holder := queueHolder(pid)
	if !e.guard.TryAcquire(pid, holder) {
		werr := newError(ErrCodeAlreadyInSession, "player already has an active session").forPlayer(pid)
		return rejected(werr), werr
	}
	handedOff := false
	defer func() {
		if !handedOff {
			e.guard.ReleaseIf(pid, holder)
		}
	}()

	cost := e.rules.Cost(req.Stake, req.PowerUp)
	if player.Balance.LessThan(req.Stake.Add(cost)) {
		werr := newError(ErrCodeInsufficientFunds, "balance %s below %s", player.Balance, req.Stake.Add(cost)).forPlayer(pid)
		return rejected(werr), werr
	}
	if err := e.checkHouse(ctx); err != nil {
		return rejected(err), err
	}

	me := wager.Participant{
		PlayerID:    pid,
		Stake:       req.Stake,
		PowerUp:     req.PowerUp,
		PowerUpCost: cost,
		Escrowed:    decimal.Zero,
	}

	if req.Mode == wager.ModePvC {
		bot := wager.Participant{
			PlayerID:    wager.BotPlayerID,
			Stake:       req.Stake,
			PowerUp:     wager.PowerUpNone,
			PowerUpCost: decimal.Zero,
			Escrowed:    decimal.Zero,
			Bot:         true,
		}
		s := newSession(e.seq, e.ids.Generate(), req.Mode, req.Difficulty,
			[]wager.Participant{me, bot}, map[string]int{pid: player.Stats.LastRoll}, e.clock.Now())
		e.guard.Rebind(pid, holder, s.id)
		handedOff = true
		if err := e.start(ctx, s); err != nil {
			return rejected(err), err
		}
		return Result{Admission: AdmissionMatched, SessionID: s.id}, nil
	}

	entry := &QueueEntry{
		PlayerID: pid,
		Stake:    req.Stake,
		PowerUp:  req.PowerUp,
		previous: player.Stats.LastRoll,
	}
	partner, ok := e.queue.Offer(entry)
	if !ok {
		werr := newError(ErrCodeClosed, "queue is closed").forPlayer(pid)
		return rejected(werr), werr
	}
	handedOff = true
	if partner == nil {
		e.logger.Debug("queued", "player", pid, "stake", req.Stake.String())
		return Result{Admission: AdmissionWaiting}, nil
	}

	first := wager.Participant{
		PlayerID:    partner.PlayerID,
		Stake:       partner.Stake,
		PowerUp:     partner.PowerUp,
		PowerUpCost: e.rules.Cost(partner.Stake, partner.PowerUp),
		Escrowed:    decimal.Zero,
	}
	s := newSession(e.seq, e.ids.Generate(), wager.ModePvP, wager.DifficultyNormal,
		[]wager.Participant{first, me},
		map[string]int{partner.PlayerID: partner.previous, pid: player.Stats.LastRoll},
		e.clock.Now())
	e.guard.Rebind(partner.PlayerID, queueHolder(partner.PlayerID), s.id)
	e.guard.Rebind(pid, holder, s.id)

	if err := e.start(ctx, s); err != nil {
		return rejected(err), err
	}
	e.send(ctx, partner.PlayerID, notify.Message{Kind: notify.KindMatched, SessionID: s.id})
	return Result{Admission: AdmissionMatched, SessionID: s.id}, nil
}

// Cancel removes a queued, unmatched entry. Returns false if the player was
// not waiting (already matched, evicted, or never queued).
func (e *Engine) Cancel(playerID string) bool {
	pid := NormalizePlayerID(playerID)
	if !e.queue.Cancel(pid) {
		return false
	}
	e.guard.ReleaseIf(pid, queueHolder(pid))
	e.logger.Debug("queue entry cancelled", "player", pid)
	return true
}

// Waiting reports the player's queue entry, if any.
func (e *Engine) Waiting(playerID string) (QueueEntry, bool) {
	return e.queue.Waiting(NormalizePlayerID(playerID))
}

func (e *Engine) onEvict(qe QueueEntry) {
	e.guard.ReleaseIf(qe.PlayerID, queueHolder(qe.PlayerID))
	e.logger.Info("queue entry evicted", "player", qe.PlayerID, "stake", qe.Stake.String())
	e.send(e.ctx, qe.PlayerID, notify.Message{
		Kind:   notify.KindMatchTimeout,
		Reason: string(ErrCodeMatchTimeout),
	})
}

// checkHouse confirms the house account exists.
func (e *Engine) checkHouse(ctx context.Context) error {
	_, err := e.ledger.Player(ctx, e.houseID)
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrNotRegistered) {
		e.logger.Error("house account missing", "event", "house_account_missing", "account", e.houseID)
		return &WagerError{Code: ErrCodeHouseAccountMissing, Message: "house account is not registered", PlayerID: e.houseID, Err: err}
	}
	return fromLedger(err, e.houseID)
}

// start escrows and hands the session to its goroutine.
func (e *Engine) start(ctx context.Context, s *Session) error {
	e.track(s)

	ctx, span := e.tracer.Start(ctx, "engine.escrow", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("session.mode", string(s.mode)),
	))
	defer span.End()

	if err := e.escrow(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.abort(ctx, s, err)
		return err
	}

	for _, p := range s.humans() {
		e.cooldowns.Stamp(p.PlayerID)
	}
	e.logger.Info("session started", "session", s.id, "mode", s.mode, "difficulty", s.difficulty)

	e.wg.Add(1)
	go e.run(s)
	return nil
}

// escrow debits every human all-or-nothing. Balances are revalidated under
// the players' locks, taken in sorted order, immediately before debiting.
func (e *Engine) escrow(ctx context.Context, s *Session) error {
	humans := s.humans()
	ids := make([]string, len(humans))
	for i, p := range humans {
		ids[i] = p.PlayerID
	}
	sort.Strings(ids)

	unlock := e.locks.Lock(ids...)
	defer unlock()

	for _, p := range humans {
		bal, err := e.ledger.Balance(ctx, p.PlayerID)
		if err != nil {
			return fromLedger(err, p.PlayerID).forSession(s.id)
		}
		if need := p.Stake.Add(p.PowerUpCost); bal.LessThan(need) {
			return newError(ErrCodeInsufficientFunds, "balance %s below %s", bal, need).forPlayer(p.PlayerID).forSession(s.id)
		}
	}

	reason := ledger.ReasonEscrow
	if s.parentID != "" {
		reason = ledger.ReasonContinuation
	}
	for _, p := range humans {
		amount := p.Stake.Add(p.PowerUpCost)
		memo := ledger.Memo{SessionID: s.id, Reason: reason}
		if err := e.ledger.Debit(ctx, p.PlayerID, amount, memo); err != nil {
			return fromLedger(err, p.PlayerID).forSession(s.id)
		}
		if !s.markEscrowed(p.PlayerID, amount) {
			e.returnDebit(ctx, s, p.PlayerID, amount)
			return newError(ErrCodeInvalidTransition, "session aborted during escrow").forSession(s.id)
		}
	}

	return s.transition(wager.StateEscrowed, wager.StateCreated, wager.StateContinuationOffered)
}

// returnDebit credits back a debit the session never recorded.
func (e *Engine) returnDebit(ctx context.Context, s *Session, playerID string, amount decimal.Decimal) {
	memo := ledger.Memo{SessionID: s.id, Reason: ledger.ReasonRefund}
	if err := e.ledger.Credit(context.WithoutCancel(ctx), playerID, amount, memo); err != nil {
		s.record(wager.EventRefundFailed, playerID, 0, amount.String())
		e.logger.Error("refund failed",
			"event", "refund_failed",
			"session", s.id,
			"player", playerID,
			"amount", amount.String(),
			"error", err,
		)
	}
}

// abort ends a session that has not paid out: refunds escrow best-effort,
// releases every guard the session holds and tells the players why.
func (e *Engine) abort(ctx context.Context, s *Session, cause error) {
	ctx = context.WithoutCancel(ctx)
	refunds, ok := s.markAborted(cause, e.clock.Now())
	if !ok {
		return
	}

	for _, p := range refunds {
		memo := ledger.Memo{SessionID: s.id, Reason: ledger.ReasonRefund}
		if err := e.ledger.Credit(ctx, p.PlayerID, p.Escrowed, memo); err != nil {
			s.record(wager.EventRefundFailed, p.PlayerID, 0, p.Escrowed.String())
			s.setError("refund failed: " + err.Error())
			e.logger.Error("refund failed",
				"event", "refund_failed",
				"session", s.id,
				"player", p.PlayerID,
				"amount", p.Escrowed.String(),
				"error", err,
			)
		}
	}

	reason := string(CodeOf(cause))
	if reason == "" && cause != nil {
		reason = cause.Error()
	}
	for _, p := range s.humans() {
		e.guard.ReleaseIf(p.PlayerID, s.id)
		e.send(ctx, p.PlayerID, notify.Message{Kind: notify.KindAborted, SessionID: s.id, Reason: reason})
	}

	e.logger.Warn("session aborted", "session", s.id, "reason", reason)
	e.archiveSession(ctx, s)
}
