// Package role implements the six-state role state machine spec §4.D
// describes: Follower, Candidate, Leader, Passive, and the transient
// Join/Leave wrappers around the reconfiguration handshake. Dispatch is a
// plain Go interface implemented by one struct per role (spec §9 design
// note), never reflection or a big switch over an enum.
//
// Grounded on the teacher's internal/raft/server.Server, whose
// RequestVote/AppendEntries/BeginElection methods hold a single
// undifferentiated state machine; this package splits that one struct's
// behavior out by role so a transition is "close old, open new" rather
// than an if/else tangle, per the spec's explicit redesign of that part of
// the teacher's structure.
package role

import (
	"context"
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/cluster"
	"github.com/obreshkov/raftcore/internal/raft/log"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/obreshkov/raftcore/internal/raft/session"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// Type names one of the six roles.
type Type int

const (
	RoleFollower Type = iota
	RoleCandidate
	RoleLeader
	RolePassive
	RoleJoin
	RoleLeave
)

func (t Type) String() string {
	switch t {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	case RolePassive:
		return "passive"
	case RoleJoin:
		return "join"
	case RoleLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// Role is the handler set every role implements (spec §4.D). All methods
// run on the consensus loop; none may block on I/O directly — transport
// calls go through Core and return via the loop's task queue.
type Role interface {
	Type() Type
	// Open is called once, synchronously, when this role becomes active.
	Open()
	// Close is called once, synchronously, before the next role's Open.
	Close()

	Vote(ctx context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error)
	Poll(ctx context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error)
	Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error)
	Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error)
	Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error)
	KeepAlive(ctx context.Context, req *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error)
	Join(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	Leave(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	Promote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	Demote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	Command(ctx context.Context, req *rpc.CommandRequest) (*rpc.CommandResponse, error)
	Query(ctx context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error)
}

// Core is the shared server state every role acts on — the narrow slice of
// the server context (spec §4.E) a role needs, so this package never
// imports the server package and the dependency runs the other way.
type Core interface {
	Self() raft.Member
	Log() *log.Log
	Cluster() *cluster.State
	Sessions() *session.Table
	Logger() logging.Logger
	Config() Config

	CurrentTerm() uint64
	SetCurrentTerm(term uint64)
	VotedFor() raft.ServerID
	SetVotedFor(id raft.ServerID)

	CommitIndex() uint64
	SetCommitIndex(index uint64)
	GlobalIndex() uint64
	SetGlobalIndex(index uint64)

	Leader() raft.ServerID
	SetLeader(id raft.ServerID)

	// Transition synchronously closes the active role and opens next.
	Transition(next Role)

	// Dial returns (dialing lazily, caching internally) a Peer for id.
	Dial(ctx context.Context, id raft.ServerID) (transport.Peer, error)

	// Submit schedules fn to run on the consensus loop, for code (RPC
	// fan-out goroutines) that must hand a result back into the
	// single-threaded context safely. Returns false if the loop has
	// shut down.
	Submit(fn func()) bool

	// Apply hands a committed entry's Command/Query payload to the state
	// machine context and returns its result via the cross-loop
	// completion described in spec §5.
	Apply(entry *raft.Entry) (any, error)

	// ResetElectionTimer reschedules the randomised election timeout; a
	// no-op for roles that don't run one.
	ResetElectionTimer()
}

// Config is the slice of server.Config a role consults; defined here (not
// imported from server) to keep this package's only dependency on server
// config values, not the whole struct.
type Config struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	SessionTimeout     time.Duration
}
