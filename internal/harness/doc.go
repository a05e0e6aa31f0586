// Package harness runs scripted wager scenarios against a real Engine.
//
// A scenario seeds accounts, scripts the dice, drives the engine through a
// flow of steps and then checks balances, session states and traces. Every
// run uses a fresh in-memory store, a manual clock and sequential IDs, so
// the resulting trace is identical across runs and can be compared against
// a golden file.
//
// # Scenario Format
//
//	name: pvc_win
//	description: "Player beats the bot and keeps the credit"
//	house: "10000"
//	accounts:
//	  - id: alice
//	    balance: "1000"
//	dice:
//	  rolls: [5]
//	  biased: [3]
//	flow:
//	  - action: enqueue
//	    player: alice
//	    stake: "100"
//	    expect: { status: matched, session: session-1 }
//	  - action: wait
//	    session: session-1
//	assertions:
//	  - type: balance
//	    player: alice
//	    expect: "1080"
//	  - type: event_order
//	    session: session-1
//	    kinds: [escrowed, rolled, settled, resolved]
//
// # Steps
//
//   - enqueue, propose: submit a bet (mode, stake, power_up, difficulty)
//   - confirm: confirm a proposal by ID
//   - cancel: leave the matchmaking queue
//   - decide: answer a pending reroll offer
//   - await: block until a player has been sent a notification kind
//   - wait: block until a session is archived, optionally in a given state
//   - advance: move the manual clock, firing due timers
//   - offer, resolve, decline: the double-or-nothing continuation
//   - deposit: credit an account outside any session
//
// # Assertion Types
//
//   - balance: a player's (or the house's) final balance
//   - session_state, outcome: a session's final state or outcome
//   - event_order: event kinds appear in order, gaps allowed
//   - event_count: an event kind appears exactly N times
//   - notified: a player was sent a notification kind
//   - stats: a player's win/loss/tie counters
//
// Independently of the listed assertions, every run checks that money was
// conserved and that every scripted die was used.
package harness
