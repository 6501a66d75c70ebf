// Package raerrors defines the typed error taxonomy shared across the
// consensus core: transient errors the client core retries, session errors
// that are fatal to a session, validation errors that abort an operation
// without crashing the server, and storage errors that are fatal to the
// server itself.
package raerrors

import (
	"errors"
	"fmt"
)

// Transient errors are retriable by the caller. The client core re-routes on
// these instead of surfacing them to the application.
var (
	ErrNoLeader       = errors.New("raft: no known leader")
	ErrConnectionLost = errors.New("raft: connection lost")
	ErrTimeout        = errors.New("raft: request timed out")
)

// Session errors are fatal to the session; the client must register a new
// one.
var (
	ErrUnknownSession = errors.New("raft: unknown session")
	ErrSessionExpired = errors.New("raft: session expired")
)

// Validation errors are programmer/protocol errors: the offending operation
// is aborted but the server keeps running.
var (
	ErrIllegalArgument = errors.New("raft: illegal argument")
	ErrIllegalState    = errors.New("raft: illegal state")
)

// Storage errors are fatal: the server transitions to INACTIVE and closes
// its transport.
var (
	ErrLogCorruption = errors.New("raft: log corruption")
	ErrIOError       = errors.New("raft: io error")
)

// NoLeaderError reports that a Command/Query could not be routed because the
// server does not currently know the cluster leader.
type NoLeaderError struct {
	Server string
}

func (e *NoLeaderError) Error() string {
	return fmt.Sprintf("raft: server %s does not know the current leader", e.Server)
}

func (e *NoLeaderError) Unwrap() error { return ErrNoLeader }

// IllegalStateError carries a message describing which invariant was
// violated (e.g. "commit index decreased", "double vote in term 4").
type IllegalStateError struct {
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("raft: illegal state: %s", e.Reason)
}

func (e *IllegalStateError) Unwrap() error { return ErrIllegalState }

// SessionExpiredError reports that operations were attempted against a
// session that timed out without a keep-alive.
type SessionExpiredError struct {
	Session uint64
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("raft: session %d expired", e.Session)
}

func (e *SessionExpiredError) Unwrap() error { return ErrSessionExpired }

// ApplicationError wraps an error returned by the user state machine's
// Apply. It is captured and returned as the command's result rather than
// crashing consensus.
type ApplicationError struct {
	Cause error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("raft: application error: %v", e.Cause)
}

func (e *ApplicationError) Unwrap() error { return e.Cause }
