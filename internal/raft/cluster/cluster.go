// Package cluster tracks the membership view a server consensus loop acts
// on: which servers are active (voting), passive (replicating only), or
// client-facing, plus the replication progress the leader role needs for
// each peer.
package cluster

import (
	"sync"

	"github.com/obreshkov/raftcore/internal/raft"
)

// Progress tracks a leader's replication state for one peer, per the Raft
// nextIndex/matchIndex pair.
type Progress struct {
	NextIndex  uint64
	MatchIndex uint64
}

// State holds the local member and the cluster's membership view. It is
// exclusively owned by the consensus loop.
type State struct {
	mu sync.RWMutex

	local   raft.ServerID
	version uint64

	active  map[raft.ServerID]raft.Member
	passive map[raft.ServerID]raft.Member
	clients map[raft.ServerID]raft.Member

	progress map[raft.ServerID]*Progress
}

// New builds a State seeded with local as the (initially sole) active
// member at version 0, per the server context's open() lifecycle.
func New(local raft.Member) *State {
	s := &State{
		local:    local.ID,
		active:   make(map[raft.ServerID]raft.Member),
		passive:  make(map[raft.ServerID]raft.Member),
		clients:  make(map[raft.ServerID]raft.Member),
		progress: make(map[raft.ServerID]*Progress),
	}
	s.active[local.ID] = local
	return s
}

// Configure atomically replaces the active/passive/client sets, recording
// version as the index of the Configuration entry that produced it. Peers
// dropped from the new sets lose their replication progress; peers newly
// added to active/passive get fresh progress seeded by the caller via
// InitProgress.
func (s *State) Configure(version uint64, active, passive []raft.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version = version
	newActive := make(map[raft.ServerID]raft.Member, len(active))
	newPassive := make(map[raft.ServerID]raft.Member, len(passive))
	newClients := make(map[raft.ServerID]raft.Member)

	for _, m := range active {
		switch m.Type {
		case raft.MemberClient:
			newClients[m.ID] = m
		default:
			newActive[m.ID] = m
		}
	}
	for _, m := range passive {
		switch m.Type {
		case raft.MemberClient:
			newClients[m.ID] = m
		default:
			newPassive[m.ID] = m
		}
	}

	for id := range s.progress {
		if _, ok := newActive[id]; ok {
			continue
		}
		if _, ok := newPassive[id]; ok {
			continue
		}
		delete(s.progress, id)
	}

	s.active = newActive
	s.passive = newPassive
	s.clients = newClients
}

// Version returns the index of the Configuration entry currently in effect.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Local returns the id of the server that owns this State.
func (s *State) Local() raft.ServerID {
	return s.local
}

// IsActive reports whether id is a voting member.
func (s *State) IsActive(id raft.ServerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[id]
	return ok
}

// IsPassive reports whether id is a replicating, non-voting member.
func (s *State) IsPassive(id raft.ServerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.passive[id]
	return ok
}

// ActiveMembers returns every voting member, including the local server.
func (s *State) ActiveMembers() []raft.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]raft.Member, 0, len(s.active))
	for _, m := range s.active {
		out = append(out, m)
	}
	return out
}

// PassiveMembers returns every replicating, non-voting member.
func (s *State) PassiveMembers() []raft.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]raft.Member, 0, len(s.passive))
	for _, m := range s.passive {
		out = append(out, m)
	}
	return out
}

// ClientMembers returns members advertised to clients only.
func (s *State) ClientMembers() []raft.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]raft.Member, 0, len(s.clients))
	for _, m := range s.clients {
		out = append(out, m)
	}
	return out
}

// Quorum returns the number of active-member votes required for a majority:
// floor(|ACTIVE|/2) + 1.
func (s *State) Quorum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)/2 + 1
}

// ActiveCount returns the number of voting members.
func (s *State) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// InitProgress seeds replication progress for a newly added active or
// passive peer (nextIndex = lastLogIndex+1, matchIndex = 0, per spec §4.D).
func (s *State) InitProgress(id raft.ServerID, lastLogIndex uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = &Progress{NextIndex: lastLogIndex + 1, MatchIndex: 0}
}

// Progress returns the replication progress tracked for peer id, if any.
func (s *State) Progress(id raft.ServerID) (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[id]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// SetProgress updates the replication progress tracked for peer id.
func (s *State) SetProgress(id raft.ServerID, p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = &p
}

// MatchIndexes returns the matchIndex of every active peer (including the
// local server, whose match is always the log's lastIndex — the caller
// supplies it since State does not own the log).
func (s *State) MatchIndexes(localMatch uint64) map[raft.ServerID]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[raft.ServerID]uint64, len(s.active))
	for id := range s.active {
		if id == s.local {
			out[id] = localMatch
			continue
		}
		if p, ok := s.progress[id]; ok {
			out[id] = p.MatchIndex
		}
	}
	return out
}
