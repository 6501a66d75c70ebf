package role

import (
	"context"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

// Passive replicates the log but never votes and never counts toward
// quorum (spec §4.D Passive). It applies the leader's Sync calls with the
// same log consistency check an ACTIVE follower uses for Append, and may serve ConsistencySequential queries locally once
// its own log has caught up, without forwarding them to the leader.
type Passive struct {
	core Core
}

func NewPassive(core Core) *Passive {
	return &Passive{core: core}
}

func (p *Passive) Type() Type { return RolePassive }

func (p *Passive) Open()  {}
func (p *Passive) Close() {}

// Vote and Poll are always refused: a PASSIVE member has no vote to give.
func (p *Passive) Vote(_ context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	stepDownIfStale(p.core, req.Term)
	return &rpc.VoteResponse{Term: p.core.CurrentTerm(), VoteGranted: false}, nil
}

func (p *Passive) Poll(_ context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	return &rpc.PollResponse{Term: p.core.CurrentTerm(), Accepted: false}, nil
}

func (p *Passive) Append(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return appendEntries(p.core, req), nil
}

// Sync is the same consistency check as Append; PASSIVE members get no
// special relaxation in the replication math itself, only in that they are
// never asked to vote or accept a PrevLogIndex that could fork the log
// away from what the leader — the sole source of truth for a
// non-voting member — just sent.
func (p *Passive) Sync(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return appendEntries(p.core, req), nil
}

func (p *Passive) Register(context.Context, *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return notLeaderRegister(p.core), nil
}

func (p *Passive) KeepAlive(context.Context, *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return notLeaderKeepAlive(p.core), nil
}

func (p *Passive) Join(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(p.core), nil
}

func (p *Passive) Leave(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(p.core), nil
}

func (p *Passive) Promote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(p.core), nil
}

func (p *Passive) Demote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(p.core), nil
}

func (p *Passive) Command(context.Context, *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	return notLeaderCommand(p.core), nil
}

// Query serves a ConsistencySequential read locally once this member's
// log has applied at least up to its own lastApplied watermark; anything
// else (a linearizable read, or a session this member has never seen) is
// redirected to the leader.
func (p *Passive) Query(_ context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	if req.Consistency != rpc.ConsistencySequential {
		return notLeaderQuery(p.core), nil
	}
	sess, ok := p.core.Sessions().Get(req.Session)
	if !ok || !sess.IsOpen() {
		return &rpc.QueryResponse{Status: rpc.StatusUnknownSession}, nil
	}

	index := p.core.Log().LastApplied()
	result, err := p.core.Apply(&raft.Entry{
		Index:    index,
		Type:     raft.EntryQuery,
		Session:  req.Session,
		Sequence: req.Sequence,
		Payload:  req.Operation,
	})
	resp := &rpc.QueryResponse{Status: rpc.StatusOK, Index: index}
	if err != nil {
		resp.Status = rpc.StatusError
	} else if payload, ok := result.([]byte); ok {
		resp.Result = payload
	}
	return resp, nil
}
