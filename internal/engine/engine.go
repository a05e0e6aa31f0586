package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/dicewager/internal/clock"
	"github.com/roach88/dicewager/internal/dice"
	"github.com/roach88/dicewager/internal/ledger"
	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/payout"
	"github.com/roach88/dicewager/internal/wager"
)

// DefaultHouseAccount is the ledger account that collects commission and
// covers bot stakes.
const DefaultHouseAccount = "house"

// Archive persists finished sessions. Implemented by store.Store.
type Archive interface {
	ArchiveSession(ctx context.Context, snap wager.Snapshot) error
	LoadSession(ctx context.Context, sessionID string) (wager.Snapshot, error)
}

// Timing holds every wait the engine performs.
type Timing struct {
	// QueueTimeout evicts unmatched PvP entries.
	QueueTimeout time.Duration
	// RerollWindow bounds the reroll decision; on timeout the roll is kept.
	RerollWindow time.Duration
	// ConfirmWindow expires unconfirmed proposals.
	ConfirmWindow time.Duration
	// ContinuationWindow expires an unanswered double-or-nothing offer.
	// Zero disables continuations.
	ContinuationWindow time.Duration
	// RollDelay paces each roll for the front-end's dice animation.
	RollDelay time.Duration
	// RetryInterval is the backoff before the single ledger retry.
	RetryInterval time.Duration

	Cooldown CooldownPolicy
}

// DefaultTiming returns the production timing.
func DefaultTiming() Timing {
	return Timing{
		QueueTimeout:       30 * time.Second,
		RerollWindow:       10 * time.Second,
		ConfirmWindow:      60 * time.Second,
		ContinuationWindow: 60 * time.Second,
		RollDelay:          3 * time.Second,
		RetryInterval:      ledger.DefaultRetryInterval,
		Cooldown:           DefaultCooldownPolicy(),
	}
}

// Engine is the Wager Match Engine.
//
// Thread-safety: every exported method is safe for concurrent use. Each
// running session is driven by its own goroutine; Close waits for them.
type Engine struct {
	ledger   ledger.Ledger
	roller   dice.Roller
	notifier notify.Notifier
	archive  Archive
	clock    clock.Clock
	ids      IDGenerator
	seq      *clock.Sequence
	logger   *slog.Logger
	tracer   trace.Tracer
	rules    payout.Rules
	timing   Timing
	houseID  string

	queue     *MatchmakingQueue
	cooldowns *CooldownRegistry
	guard     *SessionGuard
	decisions *Decisions
	proposals *proposals
	locks     *keyedLocks

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules sets the payout rules. Default: payout.DefaultRules().
func WithRules(r payout.Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// WithTiming sets timeouts and delays. Default: DefaultTiming().
func WithTiming(t Timing) Option {
	return func(e *Engine) { e.timing = t }
}

// WithRoller sets the RNG. Default: crypto-seeded dice.
func WithRoller(r dice.Roller) Option {
	return func(e *Engine) { e.roller = r }
}

// WithNotifier sets where outcome messages go. Default: a log notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithArchive persists finished sessions and serves them to Status after
// they leave memory.
func WithArchive(a Archive) Option {
	return func(e *Engine) { e.archive = a }
}

// WithClock sets the time source. Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the session/proposal ID source. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer. Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithHouseAccount sets the house account ID. Default: DefaultHouseAccount.
func WithHouseAccount(id string) Option {
	return func(e *Engine) { e.houseID = id }
}

// WithSequence resumes versions from a known position.
func WithSequence(s *clock.Sequence) Option {
	return func(e *Engine) { e.seq = s }
}

// New creates an Engine over the given ledger. The ledger is wrapped so
// that unavailable errors are retried once with backoff.
func New(l ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		rules:    payout.DefaultRules(),
		timing:   DefaultTiming(),
		clock:    clock.System{},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		houseID:  DefaultHouseAccount,
		sessions: make(map[string]*Session),
		locks:    newKeyedLocks(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.seq == nil {
		e.seq = clock.NewSequence()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/roach88/dicewager/internal/engine")
	}
	if e.notifier == nil {
		e.notifier = notify.NewLog(e.logger)
	}
	if e.roller == nil {
		d, err := dice.New()
		if err != nil {
			e.logger.Warn("crypto seed unavailable, seeding from time", "error", err)
			d = dice.NewSeeded(time.Now().UnixNano())
		}
		e.roller = d
	}

	e.ledger = ledger.NewRetrying(l, e.timing.RetryInterval)
	e.guard = NewSessionGuard()
	e.cooldowns = NewCooldownRegistry(e.clock, e.timing.Cooldown)
	e.decisions = NewDecisions(e.clock)
	e.queue = NewMatchmakingQueue(e.clock, e.timing.QueueTimeout, e.onEvict)
	e.proposals = newProposals(e.clock, e.timing.ConfirmWindow, e.onProposalExpired)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	return e
}

// Rules returns the payout rules in effect.
func (e *Engine) Rules() payout.Rules {
	return e.rules
}

// HouseAccount returns the house account ID.
func (e *Engine) HouseAccount() string {
	return e.houseID
}

// Guard exposes the session guard for inspection.
func (e *Engine) Guard() *SessionGuard {
	return e.guard
}

// Close stops accepting work, drains the queue, cancels pending decisions
// and waits for running sessions to finish. Sessions interrupted mid-roll
// are aborted and refunded.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	for _, qe := range e.queue.Close() {
		e.guard.ReleaseIf(qe.PlayerID, queueHolder(qe.PlayerID))
	}
	e.proposals.close()
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) track(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[s.id] = s
}

func (e *Engine) lookup(sessionID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	return s, ok
}

// send delivers a message; failures are logged and never affect a session.
func (e *Engine) send(ctx context.Context, playerID string, msg notify.Message) {
	if err := e.notifier.Send(context.WithoutCancel(ctx), playerID, msg); err != nil {
		e.logger.Warn("notify failed", "player", playerID, "kind", msg.Kind, "error", err)
	}
}

// archiveSession writes the snapshot when an archive is configured.
func (e *Engine) archiveSession(ctx context.Context, s *Session) {
	if e.archive == nil {
		return
	}
	if err := e.archive.ArchiveSession(context.WithoutCancel(ctx), s.Snapshot()); err != nil {
		e.logger.Warn("archive session failed", "session", s.id, "error", err)
	}
}

func queueHolder(playerID string) string {
	return "queue:" + playerID
}
