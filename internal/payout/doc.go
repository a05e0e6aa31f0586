// Package payout implements the pure resolution math of a wager session.
//
// Every function here is deterministic and side-effect free: given the
// stakes, faces, power-ups, mode and the outcome of the jackpot chance draw,
// it returns who won, what each human participant gets back, the house
// commission and the house's net delta. No I/O, no clocks, no randomness.
//
// Money conservation holds for every Resolution:
//
//	sum(Credits) + HouseDelta == Escrowed
//
// so the sum of participant balance deltas plus the house delta is zero.
package payout
