package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/cluster"
	"github.com/obreshkov/raftcore/internal/raft/log"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/loop"
	"github.com/obreshkov/raftcore/internal/raft/metrics"
	"github.com/obreshkov/raftcore/internal/raft/role"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/obreshkov/raftcore/internal/raft/session"
	"github.com/obreshkov/raftcore/internal/raft/statemachine"
	"github.com/obreshkov/raftcore/internal/raft/storage"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// Server is the concrete role.Core: it owns every collaborator a role acts
// on (the log, the cluster view, the session table, durable metadata) and
// is itself the rpc.Server a transport listener dispatches to, delegating
// each call to whichever role is currently active. It also runs the two
// background jobs that sit above the role layer: log compaction and the
// session reaper that proposes EntryExpire for clients that missed their
// keep-alive deadline.
type Server struct {
	cfg    Config
	self   raft.Member
	logger logging.Logger

	log      *log.Log
	clusterState *cluster.State
	sessions *session.Table
	metadata *storage.MetadataStore
	loop     *loop.Loop

	transport transport.Transport
	listener  io.Closer

	sm        statemachine.StateMachine
	filter    *log.EntryFilter
	compactor *log.Compactor
	metrics   *metrics.Metrics

	mu          sync.RWMutex
	active      role.Role
	currentTerm uint64
	votedFor    raft.ServerID
	commitIndex uint64
	globalIndex uint64
	leaderID    raft.ServerID

	peersMu sync.Mutex
	peers   map[raft.ServerID]transport.Peer

	loopGoroutineID atomic.Uint64
	electionStart   atomic.Int64

	backgroundCancel context.CancelFunc
}

// New builds a Server from cfg, opening its log and metadata store and
// loading any previously persisted term/vote, but does not yet start the
// consensus loop or listen for RPCs — call Open for that.
func New(cfg Config) (*Server, error) {
	cfg.setDefaults()
	if cfg.StateMachine == nil {
		return nil, fmt.Errorf("server: config requires a StateMachine")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("server: create data dir: %w", err)
	}

	l, err := log.Open(filepath.Join(cfg.DataDir, "log"), cfg.SegmentSize, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("server: open log: %w", err)
	}

	meta, err := storage.Open(filepath.Join(cfg.DataDir, "meta.db"))
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("server: open metadata store: %w", err)
	}

	term, err := meta.CurrentTerm()
	if err != nil {
		meta.Close()
		l.Close()
		return nil, fmt.Errorf("server: load current term: %w", err)
	}
	votedForStr, voted, err := meta.VotedFor()
	if err != nil {
		meta.Close()
		l.Close()
		return nil, fmt.Errorf("server: load voted-for: %w", err)
	}
	var votedFor raft.ServerID
	if voted {
		votedFor = raft.ServerID(votedForStr)
	}

	self := cfg.self()
	cl := cluster.New(self)
	if len(cfg.Seeds) > 0 {
		cl.Configure(0, append([]raft.Member{self}, cfg.Seeds...), nil)
	}

	sessions := session.NewTable()
	m := metrics.NewMetrics()

	s := &Server{
		cfg:          cfg,
		self:         self,
		logger:       cfg.Logger,
		log:          l,
		clusterState: cl,
		sessions:     sessions,
		metadata:     meta,
		loop:         loop.New(256),
		transport:    cfg.Transport,
		sm:           cfg.StateMachine,
		metrics:      m,
		currentTerm:  term,
		votedFor:     votedFor,
		peers:        make(map[raft.ServerID]transport.Peer),
	}

	s.filter = log.NewEntryFilter(sessions, s.shouldDiscardCommand)
	s.compactor = log.NewCompactor(l, s.filter, s, cfg.MinorCompactionInterval, cfg.MajorCompactionInterval, cfg.Logger)
	s.compactor.SetMetrics(m)

	return s, nil
}

// shouldDiscardCommand adapts statemachine.StateMachine.Filter to
// log.CommandFilter, inferring whether entry is in major-compaction
// territory from its position relative to the current global index since
// CommandFilter, unlike EntryFilter.ShouldDiscard, is not told which pass
// is asking.
func (s *Server) shouldDiscardCommand(entry *raft.Entry) bool {
	commit := statemachine.Commit{
		Index:     entry.Index,
		Session:   entry.Session,
		Operation: entry.Payload,
	}
	major := entry.Index <= s.GlobalIndex()
	watermark := s.CommitIndex()
	if major {
		watermark = s.GlobalIndex()
	}
	ctx := statemachine.CompactionContext{Index: watermark, Major: major}
	return s.sm.Filter(commit, ctx)
}

// Metrics returns the server's metrics sink, for a demo binary or test to
// print a report from.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Open starts the consensus loop's background jobs, begins listening for
// RPCs, and transitions into the server's initial role: Follower for a
// bootstrap node or one rejoining a cluster it already belongs to, Join
// for a fresh node admitted via seeds.
func (s *Server) Open() error {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return fmt.Errorf("server: already open")
	}
	s.mu.Unlock()

	s.loop.Submit(func() { s.loopGoroutineID.Store(goroutineID()) })

	listener, err := s.transport.Listen(s.cfg.BindAddress, s)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.BindAddress, err)
	}
	s.listener = listener

	ctx, cancel := context.WithCancel(context.Background())
	s.backgroundCancel = cancel
	go s.compactor.Run(ctx)
	go s.runSessionReaper(ctx)

	var initial role.Role
	if !s.cfg.Bootstrap && len(s.cfg.Seeds) > 0 {
		initial = role.NewJoin(s)
	} else {
		initial = role.NewFollower(s)
	}
	s.Transition(initial)
	return nil
}

// Close tears the server down: closes the active role, stops the
// background jobs, closes every dialed peer connection, shuts down the
// consensus loop, and closes the log and metadata store.
func (s *Server) Close() error {
	s.mu.Lock()
	active := s.active
	s.active = nil
	s.mu.Unlock()
	if active != nil {
		active.Close()
	}

	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.peersMu.Lock()
	for id, p := range s.peers {
		if err := p.Close(); err != nil {
			s.logger.Warnf("server: close peer %s: %v", id, err)
		}
	}
	s.peersMu.Unlock()

	s.loop.Shutdown()

	if err := s.log.Close(); err != nil {
		return fmt.Errorf("server: close log: %w", err)
	}
	if err := s.metadata.Close(); err != nil {
		return fmt.Errorf("server: close metadata store: %w", err)
	}
	return nil
}

// runSessionReaper periodically proposes EntryExpire for every session
// that has missed its keep-alive deadline. Grounded on
// session.Table.ExpireBefore's doc comment: expiry must go through the log
// for every server to agree on which sessions timed out, so this only has
// an effect while this server is the leader — Leader.Propose no-ops
// harmlessly via the type assertion on every other role.
func (s *Server) runSessionReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpiredSessions()
		}
	}
}

func (s *Server) sweepExpiredSessions() {
	deadline := time.Now().Add(-s.cfg.SessionTimeout).UnixNano()
	expired := s.sessions.ExpireBefore(deadline)
	if len(expired) == 0 {
		return
	}
	s.loop.Submit(func() {
		s.checkThread()
		s.mu.RLock()
		leader, ok := s.active.(*role.Leader)
		s.mu.RUnlock()
		if !ok {
			return
		}
		for _, sess := range expired {
			if _, err := leader.Propose(&raft.Entry{Type: raft.EntryExpire, Session: sess.ID()}); err != nil {
				s.logger.Warnf("server: propose expire for session %d: %v", sess.ID(), err)
			}
		}
	})
}

var goroutineIDPattern = regexp.MustCompile(`^goroutine (\d+)`)

// goroutineID extracts the calling goroutine's id from runtime.Stack, the
// same approach the Go standard library's own race-detector helpers use
// since the runtime exposes no public API for it.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	match := goroutineIDPattern.FindSubmatch(bytes.TrimSpace(buf[:n]))
	if match == nil {
		return 0
	}
	id, _ := strconv.ParseUint(string(match[1]), 10, 64)
	return id
}

// checkThread is a debug invariant grounded on the original
// ServerContext.checkThread(): code that is only ever supposed to run on
// the consensus loop's single goroutine — the session reaper's proposal
// path, in particular — asserts it here rather than silently risking a
// data race if that assumption is ever broken by a future change.
func (s *Server) checkThread() {
	want := s.loopGoroutineID.Load()
	if want == 0 {
		return
	}
	if got := goroutineID(); got != want {
		s.logger.Warnf("server: checkThread: running on goroutine %d, expected the consensus loop's goroutine %d", got, want)
	}
}

// --- role.Core ---

func (s *Server) Self() raft.Member        { return s.self }
func (s *Server) Log() *log.Log            { return s.log }
func (s *Server) Cluster() *cluster.State  { return s.clusterState }
func (s *Server) Sessions() *session.Table { return s.sessions }
func (s *Server) Logger() logging.Logger   { return s.logger }
func (s *Server) Config() role.Config      { return s.cfg.roleConfig() }

func (s *Server) CurrentTerm() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTerm
}

func (s *Server) SetCurrentTerm(term uint64) {
	s.mu.Lock()
	s.currentTerm = term
	s.mu.Unlock()
	if err := s.metadata.SetCurrentTerm(term); err != nil {
		s.logger.Errorf("server: persist current term: %v", err)
	}
}

func (s *Server) VotedFor() raft.ServerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.votedFor
}

func (s *Server) SetVotedFor(id raft.ServerID) {
	s.mu.Lock()
	s.votedFor = id
	s.mu.Unlock()
	if err := s.metadata.SetVotedFor(string(id)); err != nil {
		s.logger.Errorf("server: persist voted-for: %v", err)
	}
}

func (s *Server) CommitIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitIndex
}

func (s *Server) SetCommitIndex(index uint64) {
	s.mu.Lock()
	s.commitIndex = index
	s.mu.Unlock()
}

func (s *Server) GlobalIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalIndex
}

func (s *Server) SetGlobalIndex(index uint64) {
	s.mu.Lock()
	s.globalIndex = index
	s.mu.Unlock()
	if err := s.log.SetLastApplied(index); err != nil {
		s.logger.Errorf("server: persist last applied index: %v", err)
	}
	s.filter.NoteLastApplied(index)
	if err := s.metadata.SetConfigVersion(s.clusterState.Version()); err != nil {
		s.logger.Warnf("server: persist config version: %v", err)
	}
}

func (s *Server) Leader() raft.ServerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaderID
}

func (s *Server) SetLeader(id raft.ServerID) {
	s.mu.Lock()
	s.leaderID = id
	s.mu.Unlock()
}

// Transition closes the active role (if any), swaps in next, and opens it.
// It also drives the election-duration metrics, grounded on the teacher's
// BeginElection/electionCount bookkeeping: entering RoleCandidate starts
// the clock, leaving it stops the clock and records the duration,
// regardless of whether the election succeeded (-> Leader) or lost to
// another candidate (-> Follower).
func (s *Server) Transition(next role.Role) {
	s.mu.Lock()
	prev := s.active
	s.active = next
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	if next.Type() == role.RoleCandidate {
		s.electionStart.Store(time.Now().UnixNano())
	} else if prev != nil && prev.Type() == role.RoleCandidate {
		if start := s.electionStart.Swap(0); start != 0 {
			s.metrics.RecordElection()
			s.metrics.RecordElectionDuration(time.Since(time.Unix(0, start)))
		}
	}

	next.Open()
}

// Dial resolves id to an address via the cluster's membership view, then
// dials (and caches) a transport.Peer for it, wrapped so every RPC this
// server originates against the peer is recorded in metrics.
func (s *Server) Dial(ctx context.Context, id raft.ServerID) (transport.Peer, error) {
	s.peersMu.Lock()
	if p, ok := s.peers[id]; ok {
		s.peersMu.Unlock()
		return p, nil
	}
	s.peersMu.Unlock()

	addr, ok := s.memberAddress(id)
	if !ok {
		return nil, fmt.Errorf("server: no known address for %s", id)
	}

	peer, err := s.transport.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("server: dial %s at %s: %w", id, addr, err)
	}
	metered := newMeteredPeer(peer, s.metrics)

	s.peersMu.Lock()
	s.peers[id] = metered
	s.peersMu.Unlock()
	return metered, nil
}

func (s *Server) memberAddress(id raft.ServerID) (string, bool) {
	members := append(append(s.clusterState.ActiveMembers(), s.clusterState.PassiveMembers()...), s.clusterState.ClientMembers()...)
	for _, m := range members {
		if m.ID == id {
			return string(m.Address()), true
		}
	}
	for _, m := range s.cfg.Seeds {
		if m.ID == id {
			return string(m.Address()), true
		}
	}
	return "", false
}

func (s *Server) Submit(fn func()) bool {
	return s.loop.Submit(fn)
}

// Apply hands a committed entry to the state machine context: Command and
// Query entries go straight to StateMachine.Apply; Register and Expire
// entries invoke the corresponding session lifecycle hook instead, per
// spec §6's state-machine contract.
func (s *Server) Apply(entry *raft.Entry) (any, error) {
	switch entry.Type {
	case raft.EntryCommand, raft.EntryQuery:
		commit := statemachine.Commit{
			Index:     entry.Index,
			Timestamp: time.Now(),
			Session:   entry.Session,
			Operation: entry.Payload,
		}
		return s.sm.Apply(commit)

	case raft.EntryRegister:
		if sess, ok := s.sessions.Get(entry.Index); ok {
			s.sm.Register(sess)
		}
		return nil, nil

	case raft.EntryExpire:
		if sess, ok := s.sessions.Get(entry.Session); ok {
			s.sm.Expire(sess)
			s.sessions.Remove(entry.Session)
			s.metrics.RecordSessionExpired()
		}
		return nil, nil

	default:
		return nil, nil
	}
}

func (s *Server) ResetElectionTimer() {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	if f, ok := active.(*role.Follower); ok {
		f.ResetElectionTimer()
	}
}

// --- log.IndexSource, consulted by the compactor ---

var _ log.IndexSource = (*Server)(nil)

// --- rpc.Server: delegates every RPC to whichever role is currently
// active. Vote/Poll/Append/Sync/Join/Leave/Promote/Demote/Command/Query
// run directly on the calling goroutine, same as when a role's tests call
// them directly against a fakeCore — only the log append + pending-future
// registration inside a role's handler is ever Submitted onto the loop. ---

func (s *Server) activeRole() role.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Server) Vote(ctx context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	return s.activeRole().Vote(ctx, req)
}

func (s *Server) Poll(ctx context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	return s.activeRole().Poll(ctx, req)
}

func (s *Server) Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return s.activeRole().Append(ctx, req)
}

func (s *Server) Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return s.activeRole().Sync(ctx, req)
}

func (s *Server) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return s.activeRole().Register(ctx, req)
}

func (s *Server) KeepAlive(ctx context.Context, req *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return s.activeRole().KeepAlive(ctx, req)
}

func (s *Server) Join(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return s.activeRole().Join(ctx, req)
}

func (s *Server) Leave(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return s.activeRole().Leave(ctx, req)
}

func (s *Server) Promote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return s.activeRole().Promote(ctx, req)
}

func (s *Server) Demote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return s.activeRole().Demote(ctx, req)
}

// Command delegates to the active role and, on success, records the
// round-trip latency and commit counters the teacher's transport layer
// never had a state-machine-aware place to record, since here Command is
// the one entrypoint that spans submission through commit.
func (s *Server) Command(ctx context.Context, req *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	start := time.Now()
	resp, err := s.activeRole().Command(ctx, req)
	if err == nil && resp != nil && resp.Status == rpc.StatusOK {
		s.metrics.RecordCommandLatency(time.Since(start))
		s.metrics.RecordCommandCommitted()
	}
	return resp, err
}

func (s *Server) Query(ctx context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return s.activeRole().Query(ctx, req)
}

// Publish acknowledges event delivery out of band from KeepAlive, letting
// a client that has nothing else to report clear its resend buffer sooner
// than the next keep-alive round trip. Unlike KeepAlive this never goes
// through the log: an un-acked event is, at worst, resent once more after
// a leader change, which every event consumer must already tolerate since
// delivery here is at-least-once.
func (s *Server) Publish(ctx context.Context, req *rpc.PublishRequest) (*rpc.PublishResponse, error) {
	sess, ok := s.sessions.Get(req.Session)
	if !ok {
		return &rpc.PublishResponse{Status: rpc.StatusUnknownSession}, nil
	}
	sess.ClearEventsBelow(req.EventSequence)
	return &rpc.PublishResponse{Status: rpc.StatusOK, EventSequence: req.EventSequence}, nil
}

var _ rpc.Server = (*Server)(nil)
var _ role.Core = (*Server)(nil)
