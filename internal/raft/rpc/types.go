// Package rpc defines the wire messages exchanged between servers and
// between a server and the client core, per the RPC table in spec §6.
// Every message is a plain Go struct, gob-encodable, carrying exactly the
// fields the table lists.
package rpc

import (
	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/session"
)

// Status reports the outcome of a client-facing RPC (Command, Query,
// KeepAlive, Register, Publish, and the membership handshakes).
type Status uint8

const (
	StatusOK Status = iota
	StatusError
	StatusNotLeader
	StatusUnknownSession
	StatusSessionExpired
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusNotLeader:
		return "not-leader"
	case StatusUnknownSession:
		return "unknown-session"
	case StatusSessionExpired:
		return "session-expired"
	default:
		return "unknown"
	}
}

// VoteRequest is the RequestVote RPC (spec §6 "Vote").
type VoteRequest struct {
	Term          uint64
	Candidate     raft.ServerID
	LastLogIndex  uint64
	LastLogTerm   uint64
}

type VoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// PollRequest is the pre-vote RPC; same shape as VoteRequest but never
// causes the receiver to persist a vote.
type PollRequest struct {
	Term         uint64
	Candidate    raft.ServerID
	LastLogIndex uint64
	LastLogTerm  uint64
}

type PollResponse struct {
	Term     uint64
	Accepted bool
}

// AppendRequest is the AppendEntries RPC (spec §6 "Append"). Sync reuses
// the same shape ("a relaxed Append") for passive peers.
type AppendRequest struct {
	Term         uint64
	Leader       raft.ServerID
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []*raft.Entry
	CommitIndex  uint64
	GlobalIndex  uint64
}

type AppendResponse struct {
	Term        uint64
	Succeeded   bool
	// LogIndex is a hint for the nextIndex to retry at on failure.
	LogIndex uint64
}

// RegisterRequest opens a new client session.
type RegisterRequest struct {
	ConnectionID string
	// Timeout is the client's session timeout in nanoseconds. The server
	// does not read it: every session expires under the server's own
	// SessionTimeout.
	Timeout      int64
}

type RegisterResponse struct {
	Status    Status
	Session   uint64
	Leader    raft.ServerID
	Members   []raft.Member
}

// KeepAliveRequest keeps a session alive and reports the client's observed
// command/event sequence so the server can trim dedup/event buffers and
// detect a missed event delivery requiring resend.
type KeepAliveRequest struct {
	Session         uint64
	CommandSequence uint64
	EventSequence   uint64
}

type KeepAliveResponse struct {
	Status  Status
	Leader  raft.ServerID
	Members []raft.Member
	// Events carries any buffered events above the request's EventSequence,
	// piggybacked on the keep-alive response since this core has no
	// server-initiated push transport (see transport.Peer).
	Events []session.Event
}

// MemberInfo describes the member a Join/Leave/Promote/Demote request
// concerns.
type MemberInfo struct {
	Member raft.Member
}

type MembershipRequest struct {
	Term   uint64
	Member raft.Member
}

type MembershipResponse struct {
	Status  Status
	Version uint64
	Active  []raft.Member
	Passive []raft.Member
}

// CommandRequest submits a state-mutating operation under a session.
type CommandRequest struct {
	Session  uint64
	Sequence uint64
	Operation []byte
}

type CommandResponse struct {
	Status Status
	Index  uint64
	Result []byte
}

// Consistency controls how a Query may be served.
type Consistency uint8

const (
	// ConsistencyLinearizable forwards the query through the leader's log
	// position (a no-op round trip) before applying it.
	ConsistencyLinearizable Consistency = iota
	// ConsistencySequential permits a passive/follower member to serve the
	// read once its own lastApplied has caught up to the session's command
	// version.
	ConsistencySequential
)

// QueryRequest submits a read-only operation under a session.
type QueryRequest struct {
	Session     uint64
	Sequence    uint64
	Operation   []byte
	Consistency Consistency
}

type QueryResponse struct {
	Status Status
	Index  uint64
	Result []byte
}

// PublishRequest lets a client ack events out of band from KeepAlive,
// clearing a session's resend buffer without waiting for the next
// keep-alive round trip.
type PublishRequest struct {
	Session       uint64
	EventSequence uint64
	Message       []byte
}

type PublishResponse struct {
	Status        Status
	EventSequence uint64 // ack
}
