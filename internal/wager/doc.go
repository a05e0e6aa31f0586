// Package wager provides the shared vocabulary of the dice wager engine.
//
// This package contains type definitions only. Every other internal package
// imports wager; wager imports nothing internal, which keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Money is always decimal.Decimal, never float64
//   - All JSON tags use snake_case
//   - Snapshots are values; holders never share the engine's live session
package wager
