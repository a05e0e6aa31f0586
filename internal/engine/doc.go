// Package engine implements the Wager Match Engine.
//
// The engine admits players, pairs them, escrows stakes, rolls dice,
// resolves payouts and settles balances through a ledger.Ledger.
//
// ARCHITECTURE:
//
// Shared state is owned by one Engine value and nothing is process-global:
//   - SessionGuard: at most one live session or queue slot per player
//   - MatchmakingQueue: PvP entries, FIFO within a stake bucket
//   - CooldownRegistry: last session start per player
//   - Decisions: pending reroll futures keyed by player
//
// Session Flow:
//  1. Enqueue validates, checks cooldown, acquires the guard and checks funds
//  2. PvC starts at once; PvP queues or completes a pair
//  3. Escrow debits every human in sorted player order under keyed locks;
//     any failure refunds what was taken and aborts the session
//  4. A goroutine per session rolls (with an optional reroll decision),
//     resolves through payout.Rules and settles
//  5. A human winner may take a double-or-nothing continuation
//     (OfferContinuation, ResolveContinuation, DeclineContinuation); the
//     offer lapses after the continuation window
//
// Propose/Confirm put an unfunded confirmation step in front of Enqueue.
// Status and Wait serve snapshots for UI polling, falling back to the
// Archive once a settled session has been evicted from memory.
//
// Every exit path releases the guard. Cooldowns are stamped only after
// escrow succeeds.
//
// Snapshot versions and event sequence numbers come from one
// clock.Sequence, so Wait callers can long-poll on "version > n".
package engine
