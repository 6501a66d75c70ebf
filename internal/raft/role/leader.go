package role

import (
	"context"
	"sync"
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/cluster"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/obreshkov/raftcore/internal/raft/session"
)

// Leader drives replication and commitment (spec §4.D Leader): appends a
// NoOp on taking office, heartbeats every peer at HeartbeatInterval,
// advances commitIndex to the highest index replicated to a quorum of
// ACTIVE members from the current term, and advances globalIndex to the
// lowest index replicated to every ACTIVE member (the major-compaction
// watermark). At most one uncommitted Configuration entry may be
// outstanding at a time.
//
// Grounded on the teacher's server.go leader loop (periodic AppendEntries,
// matchIndex/nextIndex bookkeeping) and config.go's reconfiguration
// handshake, redesigned per spec to a single Configuration entry instead
// of the teacher's two-phase C_old,new joint-consensus entries.
type Leader struct {
	core Core

	mu               sync.Mutex
	closed           bool
	pendingCommand   map[uint64]func(*rpc.CommandResponse)
	pendingQuery     map[uint64]func(*rpc.QueryResponse)
	pendingRegister  map[uint64]func(*rpc.RegisterResponse)
	pendingKeepAlive map[uint64]func(*rpc.KeepAliveResponse)
	pendingConfig    map[uint64]func(*rpc.MembershipResponse)
	configOutstanding bool

	heartbeat *time.Ticker
	stop      chan struct{}
}

func NewLeader(core Core) *Leader {
	return &Leader{
		core:             core,
		pendingCommand:   make(map[uint64]func(*rpc.CommandResponse)),
		pendingQuery:     make(map[uint64]func(*rpc.QueryResponse)),
		pendingRegister:  make(map[uint64]func(*rpc.RegisterResponse)),
		pendingKeepAlive: make(map[uint64]func(*rpc.KeepAliveResponse)),
		pendingConfig:    make(map[uint64]func(*rpc.MembershipResponse)),
	}
}

func (l *Leader) Type() Type { return RoleLeader }

func (l *Leader) Open() {
	l.stop = make(chan struct{})
	l.core.SetLeader(l.core.Self().ID)

	l.core.Log().Append(&raft.Entry{Term: l.core.CurrentTerm(), Type: raft.EntryNoOp})

	for _, member := range l.core.Cluster().ActiveMembers() {
		if member.ID == l.core.Self().ID {
			continue
		}
		l.core.Cluster().InitProgress(member.ID, l.core.Log().LastIndex())
	}
	for _, member := range l.core.Cluster().PassiveMembers() {
		l.core.Cluster().InitProgress(member.ID, l.core.Log().LastIndex())
	}

	l.heartbeat = time.NewTicker(l.core.Config().HeartbeatInterval)
	go l.heartbeatLoop()
	l.onLocalAppend()
	l.broadcast()
}

// onLocalAppend re-checks the commit/global rules against the local
// server's own matchIndex, which is always up to date — needed because a
// single-member cluster (or a leader whose peers haven't yet responded)
// would otherwise never see advanceCommit run at all, since it is
// otherwise only driven by peer AppendEntries responses.
func (l *Leader) onLocalAppend() {
	l.advanceCommit()
	l.advanceGlobal()
}

// Propose appends entry through the leader's normal local-commit-advancement
// path without registering a pending client future — for background jobs
// (the session reaper) that need an entry replicated and committed but have
// no RPC caller blocked waiting on the result. Must be called from inside a
// Core.Submit closure, same as every other log mutation in this role.
func (l *Leader) Propose(entry *raft.Entry) (uint64, error) {
	entry.Term = l.core.CurrentTerm()
	index, err := l.core.Log().Append(entry)
	if err != nil {
		return 0, err
	}
	l.onLocalAppend()
	return index, nil
}

func (l *Leader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	if l.heartbeat != nil {
		l.heartbeat.Stop()
	}
	if l.stop != nil {
		close(l.stop)
	}
	l.failAllPending()
}

func (l *Leader) failAllPending() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for seq, fn := range l.pendingCommand {
		fn(&rpc.CommandResponse{Status: rpc.StatusNotLeader})
		delete(l.pendingCommand, seq)
	}
	for seq, fn := range l.pendingQuery {
		fn(&rpc.QueryResponse{Status: rpc.StatusNotLeader})
		delete(l.pendingQuery, seq)
	}
	for seq, fn := range l.pendingRegister {
		fn(&rpc.RegisterResponse{Status: rpc.StatusNotLeader})
		delete(l.pendingRegister, seq)
	}
	for seq, fn := range l.pendingKeepAlive {
		fn(&rpc.KeepAliveResponse{Status: rpc.StatusNotLeader})
		delete(l.pendingKeepAlive, seq)
	}
	for seq, fn := range l.pendingConfig {
		fn(&rpc.MembershipResponse{Status: rpc.StatusNotLeader})
		delete(l.pendingConfig, seq)
	}
}

func (l *Leader) heartbeatLoop() {
	for {
		select {
		case <-l.stop:
			return
		case <-l.heartbeat.C:
			l.core.Submit(func() { l.broadcast() })
		}
	}
}

// broadcast sends AppendEntries (or Sync, for passive peers) to every peer,
// carrying whatever entries are new since its tracked nextIndex.
func (l *Leader) broadcast() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	self := l.core.Self().ID
	for _, member := range append(l.core.Cluster().ActiveMembers(), l.core.Cluster().PassiveMembers()...) {
		if member.ID == self {
			continue
		}
		go l.replicateTo(member)
	}
}

func (l *Leader) replicateTo(member raft.Member) {
	progress, ok := l.core.Cluster().Progress(member.ID)
	if !ok {
		l.core.Cluster().InitProgress(member.ID, l.core.Log().LastIndex())
		progress, _ = l.core.Cluster().Progress(member.ID)
	}

	prevIndex := progress.NextIndex - 1
	prevTerm, _ := l.core.Log().TermAt(prevIndex)

	var entries []*raft.Entry
	for idx := progress.NextIndex; idx <= l.core.Log().LastIndex(); idx++ {
		if entry, ok := l.core.Log().Get(idx); ok {
			entries = append(entries, entry)
		}
	}

	req := &rpc.AppendRequest{
		Term:         l.core.CurrentTerm(),
		Leader:       l.core.Self().ID,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		CommitIndex:  l.core.CommitIndex(),
		GlobalIndex:  l.core.GlobalIndex(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.core.Config().HeartbeatInterval*2)
	defer cancel()

	peer, err := l.core.Dial(ctx, member.ID)
	if err != nil {
		l.core.Logger().Warnf("role: dial %s failed: %v", member.ID, err)
		return
	}

	var resp *rpc.AppendResponse
	if member.Type == raft.MemberPassive {
		resp, err = peer.Sync(ctx, req)
	} else {
		resp, err = peer.Append(ctx, req)
	}
	if err != nil {
		l.core.Logger().Warnf("role: append to %s failed: %v", member.ID, err)
		return
	}

	l.core.Submit(func() { l.handleAppendResponse(member, resp, uint64(len(entries)), progress.NextIndex) })
}

func (l *Leader) handleAppendResponse(member raft.Member, resp *rpc.AppendResponse, sent, sentFrom uint64) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}

	if resp.Term > l.core.CurrentTerm() {
		stepDownIfStale(l.core, resp.Term)
		l.core.Transition(NewFollower(l.core))
		return
	}

	if resp.Succeeded {
		match := sentFrom + sent - 1
		if sent == 0 {
			match = sentFrom - 1
		}
		l.core.Cluster().SetProgress(member.ID, cluster.Progress{NextIndex: match + 1, MatchIndex: match})
	} else {
		retry := resp.LogIndex
		if retry == 0 {
			retry = sentFrom - 1
		}
		if retry < 1 {
			retry = 1
		}
		l.core.Cluster().SetProgress(member.ID, cluster.Progress{NextIndex: retry, MatchIndex: 0})
	}

	l.advanceCommit()
	l.advanceGlobal()
}

// advanceCommit applies the Leader's commit rule: the highest index
// replicated to a quorum of ACTIVE members, restricted to the current
// term per the Raft leader-completeness safety rule.
func (l *Leader) advanceCommit() {
	matches := l.core.Cluster().MatchIndexes(l.core.Log().LastIndex())
	n := cluster.QuorumMatchIndex(matches, l.core.Cluster().Quorum())
	if n <= l.core.CommitIndex() {
		return
	}
	if term, ok := l.core.Log().TermAt(n); !ok || term != l.core.CurrentTerm() {
		return
	}

	old := l.core.CommitIndex()
	l.core.SetCommitIndex(n)
	for idx := old + 1; idx <= n; idx++ {
		l.completeIndex(idx)
	}
}

func (l *Leader) advanceGlobal() {
	matches := l.core.Cluster().MatchIndexes(l.core.Log().LastIndex())
	g := cluster.GlobalMatchIndex(matches)
	if g > l.core.GlobalIndex() {
		l.core.SetGlobalIndex(g)
	}
}

// completeIndex applies the committed entry at idx against whichever layer
// owns its semantics — the state machine for Command/Query, the session
// table for Register/KeepAlive, the cluster view for Configuration — and
// resolves whichever pending future (if any) is waiting on it.
func (l *Leader) completeIndex(idx uint64) {
	entry, ok := l.core.Log().Get(idx)
	if !ok {
		return
	}

	var result any
	var err error
	var resend []session.Event
	switch entry.Type {
	case raft.EntryCommand:
		result, err = l.core.Apply(entry)
		if sess, ok := l.core.Sessions().Get(entry.Session); ok {
			sess.NextCommandSequence(entry.Sequence)
		}
	case raft.EntryQuery:
		result, err = l.core.Apply(entry)
	case raft.EntryRegister:
		l.core.Sessions().Register(idx, entry.ConnectionID, entry.Timestamp)
		_, err = l.core.Apply(entry)
	case raft.EntryKeepAlive:
		if sess, ok := l.core.Sessions().Get(entry.Session); ok {
			sess.Touch(time.Now().UnixNano())
			sess.NextCommandSequence(entry.Sequence)
			sess.ClearCommandsBelow(entry.Sequence)
			sess.ClearEventsBelow(entry.EventAck)
			resend = sess.Resend(entry.EventAck)
		}
	case raft.EntryExpire:
		if sess, ok := l.core.Sessions().Get(entry.Session); ok {
			for _, wake := range sess.Expire() {
				wake()
			}
			_, err = l.core.Apply(entry)
		}
	case raft.EntryConfiguration:
		l.core.Cluster().Configure(idx, entry.Active, entry.Passive)
		for _, member := range append(append([]raft.Member{}, entry.Active...), entry.Passive...) {
			if member.ID == l.core.Self().ID {
				continue
			}
			if _, ok := l.core.Cluster().Progress(member.ID); !ok {
				l.core.Cluster().InitProgress(member.ID, idx)
			}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch entry.Type {
	case raft.EntryCommand:
		if fn, ok := l.pendingCommand[idx]; ok {
			resp := &rpc.CommandResponse{Status: rpc.StatusOK, Index: idx}
			if err != nil {
				resp.Status = rpc.StatusError
			} else if payload, ok := result.([]byte); ok {
				resp.Result = payload
			}
			fn(resp)
			delete(l.pendingCommand, idx)
		}
	case raft.EntryRegister:
		if fn, ok := l.pendingRegister[idx]; ok {
			fn(&rpc.RegisterResponse{Status: rpc.StatusOK, Session: idx, Leader: l.core.Self().ID, Members: notLeaderMembers(l.core)})
			delete(l.pendingRegister, idx)
		}
	case raft.EntryKeepAlive:
		if fn, ok := l.pendingKeepAlive[idx]; ok {
			fn(&rpc.KeepAliveResponse{Status: rpc.StatusOK, Leader: l.core.Self().ID, Members: notLeaderMembers(l.core), Events: resend})
			delete(l.pendingKeepAlive, idx)
		}
	case raft.EntryConfiguration:
		l.configOutstanding = false
		if fn, ok := l.pendingConfig[idx]; ok {
			fn(&rpc.MembershipResponse{
				Status:  rpc.StatusOK,
				Version: idx,
				Active:  l.core.Cluster().ActiveMembers(),
				Passive: l.core.Cluster().PassiveMembers(),
			})
			delete(l.pendingConfig, idx)
		}
	}
}

func (l *Leader) Vote(_ context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	if req.Term <= l.core.CurrentTerm() {
		return &rpc.VoteResponse{Term: l.core.CurrentTerm(), VoteGranted: false}, nil
	}
	term, granted := voteGranted(l.core, req.Term, req.Candidate, req.LastLogIndex, req.LastLogTerm, true)
	if granted {
		l.core.Transition(NewFollower(l.core))
	}
	return &rpc.VoteResponse{Term: term, VoteGranted: granted}, nil
}

func (l *Leader) Poll(_ context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	term, granted := voteGranted(l.core, req.Term, req.Candidate, req.LastLogIndex, req.LastLogTerm, false)
	return &rpc.PollResponse{Term: term, Accepted: granted}, nil
}

func (l *Leader) Append(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	if req.Term <= l.core.CurrentTerm() {
		return &rpc.AppendResponse{Term: l.core.CurrentTerm(), Succeeded: false}, nil
	}
	l.core.Transition(NewFollower(l.core))
	return appendEntries(l.core, req), nil
}

func (l *Leader) Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return l.Append(ctx, req)
}

func (l *Leader) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	done := make(chan *rpc.RegisterResponse, 1)
	ok := l.core.Submit(func() {
		index, err := l.core.Log().Append(&raft.Entry{
			Term:         l.core.CurrentTerm(),
			Type:         raft.EntryRegister,
			ConnectionID: req.ConnectionID,
			Timestamp:    time.Now().UnixNano(),
		})
		if err != nil {
			done <- &rpc.RegisterResponse{Status: rpc.StatusError}
			return
		}
		l.mu.Lock()
		l.pendingRegister[index] = func(resp *rpc.RegisterResponse) { done <- resp }
		l.mu.Unlock()
		l.onLocalAppend()
	})
	if !ok {
		return notLeaderRegister(l.core), nil
	}
	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Leader) KeepAlive(ctx context.Context, req *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	done := make(chan *rpc.KeepAliveResponse, 1)
	ok := l.core.Submit(func() {
		sess, known := l.core.Sessions().Get(req.Session)
		if !known || !sess.IsOpen() {
			done <- &rpc.KeepAliveResponse{Status: rpc.StatusUnknownSession, Leader: l.core.Self().ID}
			return
		}
		index, err := l.core.Log().Append(&raft.Entry{
			Term:     l.core.CurrentTerm(),
			Type:     raft.EntryKeepAlive,
			Session:  req.Session,
			Sequence: req.CommandSequence,
			EventAck: req.EventSequence,
		})
		if err != nil {
			done <- &rpc.KeepAliveResponse{Status: rpc.StatusError}
			return
		}
		l.mu.Lock()
		l.pendingKeepAlive[index] = func(resp *rpc.KeepAliveResponse) { done <- resp }
		l.mu.Unlock()
		l.onLocalAppend()
	})
	if !ok {
		return notLeaderKeepAlive(l.core), nil
	}
	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Leader) Command(ctx context.Context, req *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	done := make(chan *rpc.CommandResponse, 1)
	ok := l.core.Submit(func() {
		sess, known := l.core.Sessions().Get(req.Session)
		if !known || !sess.IsOpen() {
			done <- &rpc.CommandResponse{Status: rpc.StatusUnknownSession}
			return
		}
		if cached, ok := sess.Response(req.Sequence); ok {
			payload, _ := cached.(*rpc.CommandResponse)
			done <- payload
			return
		}
		index, err := l.core.Log().Append(&raft.Entry{
			Term:     l.core.CurrentTerm(),
			Type:     raft.EntryCommand,
			Session:  req.Session,
			Sequence: req.Sequence,
			Payload:  req.Operation,
		})
		if err != nil {
			done <- &rpc.CommandResponse{Status: rpc.StatusError}
			return
		}
		l.mu.Lock()
		l.pendingCommand[index] = func(resp *rpc.CommandResponse) {
			sess.RegisterResponse(req.Sequence, resp)
			sess.SetIndex(index)
			done <- resp
		}
		l.mu.Unlock()
		l.onLocalAppend()
	})
	if !ok {
		return notLeaderCommand(l.core), nil
	}
	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Leader) Query(ctx context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	done := make(chan *rpc.QueryResponse, 1)
	ok := l.core.Submit(func() {
		sess, known := l.core.Sessions().Get(req.Session)
		if !known || !sess.IsOpen() {
			done <- &rpc.QueryResponse{Status: rpc.StatusUnknownSession}
			return
		}
		index := l.core.CommitIndex()
		sess.AwaitCommandSequence(req.Sequence, func() {
			result, err := l.core.Apply(&raft.Entry{
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
			done <- resp
		})
	})
	if !ok {
		return notLeaderQuery(l.core), nil
	}
	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// proposeConfiguration appends a single Configuration entry, enforcing
// "at most one uncommitted Configuration entry outstanding" (spec §4.D).
func (l *Leader) proposeConfiguration(ctx context.Context, active, passive []raft.Member) *rpc.MembershipResponse {
	done := make(chan *rpc.MembershipResponse, 1)
	ok := l.core.Submit(func() {
		l.mu.Lock()
		if l.configOutstanding {
			l.mu.Unlock()
			done <- &rpc.MembershipResponse{Status: rpc.StatusError, Version: l.core.Cluster().Version()}
			return
		}
		l.configOutstanding = true
		l.mu.Unlock()

		index, err := l.core.Log().Append(&raft.Entry{
			Term:    l.core.CurrentTerm(),
			Type:    raft.EntryConfiguration,
			Active:  active,
			Passive: passive,
		})
		if err != nil {
			l.mu.Lock()
			l.configOutstanding = false
			l.mu.Unlock()
			done <- &rpc.MembershipResponse{Status: rpc.StatusError}
			return
		}
		l.mu.Lock()
		l.pendingConfig[index] = func(resp *rpc.MembershipResponse) { done <- resp }
		l.mu.Unlock()
		l.onLocalAppend()
	})
	if !ok {
		return notLeaderMembership(l.core)
	}
	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		return &rpc.MembershipResponse{Status: rpc.StatusError}
	}
}

// reconfigured builds the next active/passive sets by applying op to the
// current membership view plus member.
func (l *Leader) reconfigured(member raft.Member, add bool) ([]raft.Member, []raft.Member) {
	active := l.core.Cluster().ActiveMembers()
	passive := l.core.Cluster().PassiveMembers()

	filterOut := func(members []raft.Member, id raft.ServerID) []raft.Member {
		out := make([]raft.Member, 0, len(members))
		for _, m := range members {
			if m.ID != id {
				out = append(out, m)
			}
		}
		return out
	}

	active = filterOut(active, member.ID)
	passive = filterOut(passive, member.ID)

	if !add {
		return active, passive
	}
	if member.Type == raft.MemberActive {
		active = append(active, member)
	} else {
		passive = append(passive, member)
	}
	return active, passive
}

func (l *Leader) Join(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	active, passive := l.reconfigured(req.Member, true)
	return l.proposeConfiguration(ctx, active, passive), nil
}

func (l *Leader) Leave(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	active, passive := l.reconfigured(req.Member, false)
	return l.proposeConfiguration(ctx, active, passive), nil
}

func (l *Leader) Promote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	promoted := req.Member
	promoted.Type = raft.MemberActive
	active, passive := l.reconfigured(promoted, true)
	return l.proposeConfiguration(ctx, active, passive), nil
}

func (l *Leader) Demote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	demoted := req.Member
	demoted.Type = raft.MemberPassive
	active, passive := l.reconfigured(demoted, true)
	return l.proposeConfiguration(ctx, active, passive), nil
}
