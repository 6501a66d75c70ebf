// Package statemachine defines the contract the core requires of
// user-supplied application state (spec §6 "State-machine contract"),
// generalized from the teacher's single-method state_machine.StateMachine
// interface (internal/raft/state_machine/state_machine.go) into the three
// operations and three session lifecycle hooks the full spec names.
package statemachine

import (
	"time"

	"github.com/obreshkov/raftcore/internal/raft/session"
)

// Commit exposes exactly the fields spec §6 lists: index, timestamp,
// session, operation.
type Commit struct {
	Index     uint64
	Timestamp time.Time
	Session   uint64
	Operation []byte
}

// CompactionContext is passed to Filter so a state machine can decide
// whether a committed Command's effect is still observable (a later write
// superseded it), letting the compactor drop the entry without changing
// replay semantics.
type CompactionContext struct {
	// Index is the compaction pass's watermark: commitIndex for a minor
	// pass, globalIndex for a major one.
	Index uint64
	Major bool
}

// StateMachine is the contract a server's state-machine context drives on
// its dedicated single-threaded loop (spec §4.E), ascending by log index.
type StateMachine interface {
	// Apply executes commit against the state machine's own state and
	// returns the result to send back to the client that issued it.
	Apply(commit Commit) (any, error)
	// Filter is asked, during compaction, whether commit's entry may be
	// discarded — i.e. whether a later entry already superseded its
	// effect. Returning true allows discard.
	Filter(commit Commit, ctx CompactionContext) bool
	// Register is called when a new session opens.
	Register(sess *session.Session)
	// Expire is called when a session times out without a KeepAlive.
	Expire(sess *session.Session)
	// Close is called when a session closes cleanly (client-initiated).
	Close(sess *session.Session)
}

// OperationHandler is the per-operation-code dispatch function a
// StateMachine built on a registry (spec §9 design note: "no reflection")
// wires into its Apply.
type OperationHandler func(commit Commit) (any, error)
