package role

import (
	"context"
	"math/rand"
	"time"

	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

// Follower is the passive-in-the-Raft-sense default role (spec §4.D
// Follower): replicates AppendEntries from the current leader, grants
// votes, and becomes a Candidate once its election timer fires with no
// heartbeat seen. Grounded on the teacher's server.go's RequestVote and
// AppendEntries handlers and its randomised election timeout.
type Follower struct {
	core Core

	timer *time.Timer
	stop  chan struct{}
}

// NewFollower builds a Follower bound to core. Open starts its election
// timer.
func NewFollower(core Core) *Follower {
	return &Follower{core: core}
}

func (f *Follower) Type() Type { return RoleFollower }

func (f *Follower) Open() {
	f.stop = make(chan struct{})
	f.scheduleElection()
}

func (f *Follower) Close() {
	if f.timer != nil {
		f.timer.Stop()
	}
	if f.stop != nil {
		close(f.stop)
	}
}

// scheduleElection arms a one-shot timer in [min, max) per spec §4.D's
// randomised range, grounded on the teacher's getElectionTimeoutMs.
func (f *Follower) scheduleElection() {
	cfg := f.core.Config()
	spread := cfg.ElectionTimeoutMax - cfg.ElectionTimeoutMin
	timeout := cfg.ElectionTimeoutMin
	if spread > 0 {
		timeout += time.Duration(rand.Int63n(int64(spread)))
	}

	f.timer = time.AfterFunc(timeout, func() {
		select {
		case <-f.stop:
			return
		default:
		}
		f.core.Transition(NewCandidate(f.core))
	})
}

// resetTimer is called via Core.ResetElectionTimer on every valid
// Append/Vote seen, deferring the timeout.
func (f *Follower) resetTimer() {
	if f.timer != nil {
		f.timer.Stop()
	}
	f.scheduleElection()
}

// ResetElectionTimer exports resetTimer for Core implementations outside
// this package (server.Server) that delegate Core.ResetElectionTimer to
// whichever role is active.
func (f *Follower) ResetElectionTimer() {
	f.resetTimer()
}

func (f *Follower) Vote(_ context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	term, granted := voteGranted(f.core, req.Term, req.Candidate, req.LastLogIndex, req.LastLogTerm, true)
	if granted {
		f.resetTimer()
	}
	return &rpc.VoteResponse{Term: term, VoteGranted: granted}, nil
}

func (f *Follower) Poll(_ context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	term, granted := voteGranted(f.core, req.Term, req.Candidate, req.LastLogIndex, req.LastLogTerm, false)
	return &rpc.PollResponse{Term: term, Accepted: granted}, nil
}

func (f *Follower) Append(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	resp := appendEntries(f.core, req)
	f.resetTimer()
	return resp, nil
}

func (f *Follower) Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return f.Append(ctx, req)
}

func (f *Follower) Register(context.Context, *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return notLeaderRegister(f.core), nil
}

func (f *Follower) KeepAlive(context.Context, *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return notLeaderKeepAlive(f.core), nil
}

func (f *Follower) Join(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(f.core), nil
}

func (f *Follower) Leave(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(f.core), nil
}

func (f *Follower) Promote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(f.core), nil
}

func (f *Follower) Demote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(f.core), nil
}

func (f *Follower) Command(context.Context, *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	return notLeaderCommand(f.core), nil
}

func (f *Follower) Query(context.Context, *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return notLeaderQuery(f.core), nil
}
