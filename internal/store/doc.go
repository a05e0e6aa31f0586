// Package store provides SQLite-backed durable storage for the wager engine.
//
// The store implements two collaborators:
//   - ledger.Ledger: player balances, stats and an append-only movement log
//   - the session archive: one row per finished session with its snapshot
//
// # Money
//
// Amounts are stored as TEXT and handled as decimal.Decimal on the Go side.
// Every Debit and Credit runs in its own transaction; Debit re-reads the
// balance inside that transaction and refuses to overdraw unless the account
// was flagged for overdraft (the house).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
