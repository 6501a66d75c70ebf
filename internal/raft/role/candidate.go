package role

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

// Candidate runs one election (spec §4.D Candidate): increments the term,
// votes for itself, and fans out VoteRequest to every other active member.
// It becomes Leader on a quorum of grants, steps down to Follower on a
// higher term or a valid leader's Append, or starts a fresh election (a new
// Candidate, one term higher) if its own timer fires again first.
//
// Grounded on the teacher's server.go BeginElection, which does the same
// fan-out/tally against a raw peer list; this version runs the tally as
// closures Submitted back onto the consensus loop instead of touching
// shared fields directly from the dialing goroutines.
type Candidate struct {
	core Core

	mu      sync.Mutex
	closed  bool
	granted map[raft.ServerID]bool

	timer *time.Timer
	stop  chan struct{}

	cancel context.CancelFunc
}

func NewCandidate(core Core) *Candidate {
	return &Candidate{core: core, granted: make(map[raft.ServerID]bool)}
}

func (c *Candidate) Type() Type { return RoleCandidate }

func (c *Candidate) Open() {
	c.stop = make(chan struct{})

	core := c.core
	core.SetCurrentTerm(core.CurrentTerm() + 1)
	self := core.Self().ID
	core.SetVotedFor(self)
	core.SetLeader("")
	c.granted[self] = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	lastIndex := core.Log().LastIndex()
	lastTerm, _ := core.Log().TermAt(lastIndex)
	req := &rpc.VoteRequest{
		Term:         core.CurrentTerm(),
		Candidate:    self,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	}

	for _, member := range core.Cluster().ActiveMembers() {
		if member.ID == self {
			continue
		}
		go c.solicit(ctx, member.ID, req)
	}

	c.scheduleTimeout()
	c.checkQuorum()
}

func (c *Candidate) Close() {
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
	}
}

func (c *Candidate) scheduleTimeout() {
	cfg := c.core.Config()
	spread := cfg.ElectionTimeoutMax - cfg.ElectionTimeoutMin
	timeout := cfg.ElectionTimeoutMin
	if spread > 0 {
		timeout += time.Duration(rand.Int63n(int64(spread)))
	}
	c.timer = time.AfterFunc(timeout, func() {
		c.core.Submit(func() {
			select {
			case <-c.stop:
				return
			default:
			}
			c.core.Transition(NewCandidate(c.core))
		})
	})
}

func (c *Candidate) solicit(ctx context.Context, id raft.ServerID, req *rpc.VoteRequest) {
	peer, err := c.core.Dial(ctx, id)
	if err != nil {
		c.core.Logger().Warnf("role: dial %s for vote failed: %v", id, err)
		return
	}
	resp, err := peer.Vote(ctx, req)
	if err != nil {
		c.core.Logger().Warnf("role: vote request to %s failed: %v", id, err)
		return
	}
	c.core.Submit(func() { c.handleVoteResponse(id, resp) })
}

func (c *Candidate) handleVoteResponse(id raft.ServerID, resp *rpc.VoteResponse) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if resp.Term > c.core.CurrentTerm() {
		c.mu.Unlock()
		stepDownIfStale(c.core, resp.Term)
		c.core.Transition(NewFollower(c.core))
		return
	}
	if resp.VoteGranted {
		c.granted[id] = true
	}
	c.mu.Unlock()
	c.checkQuorum()
}

func (c *Candidate) checkQuorum() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	count := len(c.granted)
	c.mu.Unlock()

	if count >= c.core.Cluster().Quorum() {
		c.core.Transition(NewLeader(c.core))
	}
}

func (c *Candidate) Vote(_ context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	term, granted := voteGranted(c.core, req.Term, req.Candidate, req.LastLogIndex, req.LastLogTerm, true)
	if granted {
		c.core.Transition(NewFollower(c.core))
	}
	return &rpc.VoteResponse{Term: term, VoteGranted: granted}, nil
}

func (c *Candidate) Poll(_ context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	term, granted := voteGranted(c.core, req.Term, req.Candidate, req.LastLogIndex, req.LastLogTerm, false)
	return &rpc.PollResponse{Term: term, Accepted: granted}, nil
}

func (c *Candidate) Append(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	if req.Term < c.core.CurrentTerm() {
		return &rpc.AppendResponse{Term: c.core.CurrentTerm(), Succeeded: false}, nil
	}
	c.core.Transition(NewFollower(c.core))
	resp := appendEntries(c.core, req)
	return resp, nil
}

func (c *Candidate) Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return c.Append(ctx, req)
}

func (c *Candidate) Register(context.Context, *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return notLeaderRegister(c.core), nil
}

func (c *Candidate) KeepAlive(context.Context, *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return notLeaderKeepAlive(c.core), nil
}

func (c *Candidate) Join(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(c.core), nil
}

func (c *Candidate) Leave(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(c.core), nil
}

func (c *Candidate) Promote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(c.core), nil
}

func (c *Candidate) Demote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(c.core), nil
}

func (c *Candidate) Command(context.Context, *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	return notLeaderCommand(c.core), nil
}

func (c *Candidate) Query(context.Context, *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return notLeaderQuery(c.core), nil
}
