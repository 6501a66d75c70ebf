package role

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/cluster"
	"github.com/obreshkov/raftcore/internal/raft/log"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/loop"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/obreshkov/raftcore/internal/raft/session"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// fakePeer is a hand-rolled transport.Peer whose RPC methods are supplied
// per-test, so role tests never need a real network connection.
type fakePeer struct {
	voteFn      func(*rpc.VoteRequest) (*rpc.VoteResponse, error)
	appendFn    func(*rpc.AppendRequest) (*rpc.AppendResponse, error)
	syncFn      func(*rpc.AppendRequest) (*rpc.AppendResponse, error)
	joinFn      func(*rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	leaveFn     func(*rpc.MembershipRequest) (*rpc.MembershipResponse, error)
}

func (p *fakePeer) Vote(_ context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	if p.voteFn != nil {
		return p.voteFn(req)
	}
	return &rpc.VoteResponse{}, nil
}
func (p *fakePeer) Poll(context.Context, *rpc.PollRequest) (*rpc.PollResponse, error) {
	return &rpc.PollResponse{}, nil
}
func (p *fakePeer) Append(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	if p.appendFn != nil {
		return p.appendFn(req)
	}
	return &rpc.AppendResponse{Succeeded: true}, nil
}
func (p *fakePeer) Sync(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	if p.syncFn != nil {
		return p.syncFn(req)
	}
	return &rpc.AppendResponse{Succeeded: true}, nil
}
func (p *fakePeer) Register(context.Context, *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return &rpc.RegisterResponse{}, nil
}
func (p *fakePeer) KeepAlive(context.Context, *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return &rpc.KeepAliveResponse{}, nil
}
func (p *fakePeer) Join(_ context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	if p.joinFn != nil {
		return p.joinFn(req)
	}
	return &rpc.MembershipResponse{}, nil
}
func (p *fakePeer) Leave(_ context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	if p.leaveFn != nil {
		return p.leaveFn(req)
	}
	return &rpc.MembershipResponse{}, nil
}
func (p *fakePeer) Promote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return &rpc.MembershipResponse{}, nil
}
func (p *fakePeer) Demote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return &rpc.MembershipResponse{}, nil
}
func (p *fakePeer) Command(context.Context, *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	return &rpc.CommandResponse{}, nil
}
func (p *fakePeer) Query(context.Context, *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return &rpc.QueryResponse{}, nil
}
func (p *fakePeer) Publish(context.Context, *rpc.PublishRequest) (*rpc.PublishResponse, error) {
	return &rpc.PublishResponse{}, nil
}
func (p *fakePeer) Close() error { return nil }

// fakeCore implements role.Core against the real log/cluster/session
// packages, so role logic runs against their real behavior; only the
// network (Dial/peers) and apply function are doubled.
type fakeCore struct {
	mu sync.Mutex

	self     raft.Member
	l        *log.Log
	cl       *cluster.State
	sessions *session.Table
	cfg      Config
	loop     *loop.Loop

	currentTerm uint64
	votedFor    raft.ServerID
	commitIndex uint64
	globalIndex uint64
	leader      raft.ServerID

	peers map[raft.ServerID]transport.Peer

	transitions []Type
	active      Role

	applyFn func(*raft.Entry) (any, error)
}

func newFakeCore(t *testing.T, self raft.Member) *fakeCore {
	t.Helper()
	dir := filepath.Join(t.TempDir(), string(self.ID))
	l, err := log.Open(dir, 8, logging.Noop())
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	fc := &fakeCore{
		self:     self,
		l:        l,
		cl:       cluster.New(self),
		sessions: session.NewTable(),
		cfg: Config{
			ElectionTimeoutMin: 20 * time.Millisecond,
			ElectionTimeoutMax: 40 * time.Millisecond,
			HeartbeatInterval:  10 * time.Millisecond,
			SessionTimeout:     time.Second,
		},
		loop:  loop.New(16),
		peers: make(map[raft.ServerID]transport.Peer),
	}
	t.Cleanup(fc.loop.Shutdown)
	return fc
}

func (c *fakeCore) Self() raft.Member          { return c.self }
func (c *fakeCore) Log() *log.Log              { return c.l }
func (c *fakeCore) Cluster() *cluster.State    { return c.cl }
func (c *fakeCore) Sessions() *session.Table   { return c.sessions }
func (c *fakeCore) Logger() logging.Logger     { return logging.Noop() }
func (c *fakeCore) Config() Config             { return c.cfg }

func (c *fakeCore) CurrentTerm() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTerm
}
func (c *fakeCore) SetCurrentTerm(term uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTerm = term
}
func (c *fakeCore) VotedFor() raft.ServerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.votedFor
}
func (c *fakeCore) SetVotedFor(id raft.ServerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.votedFor = id
}
func (c *fakeCore) CommitIndex() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitIndex
}
func (c *fakeCore) SetCommitIndex(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitIndex = index
}
func (c *fakeCore) GlobalIndex() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalIndex
}
func (c *fakeCore) SetGlobalIndex(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalIndex = index
}
func (c *fakeCore) Leader() raft.ServerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader
}
func (c *fakeCore) SetLeader(id raft.ServerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leader = id
}

func (c *fakeCore) Transition(next Role) {
	c.mu.Lock()
	prev := c.active
	c.transitions = append(c.transitions, next.Type())
	c.active = next
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	next.Open()
}

func (c *fakeCore) Dial(_ context.Context, id raft.ServerID) (transport.Peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[id]
	if !ok {
		return nil, fmt.Errorf("fakeCore: no peer registered for %s", id)
	}
	return p, nil
}

func (c *fakeCore) Submit(fn func()) bool {
	return c.loop.Submit(fn)
}

func (c *fakeCore) Apply(entry *raft.Entry) (any, error) {
	if c.applyFn != nil {
		return c.applyFn(entry)
	}
	return nil, nil
}

func (c *fakeCore) ResetElectionTimer() {}

func (c *fakeCore) lastTransition() Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.transitions) == 0 {
		return -1
	}
	return c.transitions[len(c.transitions)-1]
}

func member(id string) raft.Member {
	return raft.Member{ID: raft.ServerID(id), Host: "127.0.0.1", Port: 0, Type: raft.MemberActive, Status: raft.MemberAlive}
}
