package role

import (
	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

// logUpToDate reports whether (candidateLastTerm, candidateLastIndex) is
// at least as up-to-date as this server's own log tail, per the
// lexicographic comparison spec §4.D "Vote" names.
func logUpToDate(core Core, candidateLastTerm, candidateLastIndex uint64) bool {
	lastIndex := core.Log().LastIndex()
	lastTerm, _ := core.Log().TermAt(lastIndex)

	if candidateLastTerm != lastTerm {
		return candidateLastTerm > lastTerm
	}
	return candidateLastIndex >= lastIndex
}

// stepDownIfStale updates currentTerm and reverts to Follower whenever a
// message carries a higher term than this server has seen, per the rule
// every role enforces (spec §4.D Leader "Step down", and implicitly for
// Candidate/Follower via Figure 2 of the Raft paper).
func stepDownIfStale(core Core, term uint64) bool {
	if term <= core.CurrentTerm() {
		return false
	}
	core.SetCurrentTerm(term)
	core.SetVotedFor("")
	core.SetLeader("")
	return true
}

// voteGranted implements the shared Vote/Poll granting rule (spec §4.D
// Follower "Vote"/"Poll"): grant iff the requester's term is at least
// ours, its log is at least as up-to-date, and (for a real vote, not a
// poll) we have not already voted for someone else this term.
func voteGranted(core Core, term uint64, candidate raft.ServerID, lastLogIndex, lastLogTerm uint64, persist bool) (uint64, bool) {
	if term < core.CurrentTerm() {
		return core.CurrentTerm(), false
	}
	if term > core.CurrentTerm() {
		core.SetCurrentTerm(term)
		core.SetVotedFor("")
	}

	votedFor := core.VotedFor()
	if votedFor != "" && votedFor != candidate {
		return core.CurrentTerm(), false
	}
	if !logUpToDate(core, lastLogTerm, lastLogIndex) {
		return core.CurrentTerm(), false
	}

	if persist {
		core.SetVotedFor(candidate)
	}
	return core.CurrentTerm(), true
}

// appendEntries implements the shared Append/Sync handling (spec §4.D
// Follower "Append"): consistency check against prevLogIndex/prevLogTerm,
// truncate any divergent suffix, append the new entries, advance
// commitIndex and globalIndex.
func appendEntries(core Core, req *rpc.AppendRequest) *rpc.AppendResponse {
	if req.Term < core.CurrentTerm() {
		return &rpc.AppendResponse{Term: core.CurrentTerm(), Succeeded: false}
	}
	stepDownIfStale(core, req.Term)
	core.SetLeader(req.Leader)
	core.ResetElectionTimer()

	l := core.Log()

	if req.PrevLogIndex > 0 {
		if !l.Contains(req.PrevLogIndex) {
			return &rpc.AppendResponse{Term: core.CurrentTerm(), Succeeded: false, LogIndex: l.LastIndex() + 1}
		}
		prevTerm, _ := l.TermAt(req.PrevLogIndex)
		if prevTerm != req.PrevLogTerm {
			return &rpc.AppendResponse{Term: core.CurrentTerm(), Succeeded: false, LogIndex: req.PrevLogIndex}
		}
	}

	if len(req.Entries) > 0 {
		if err := l.Truncate(req.PrevLogIndex); err != nil {
			core.Logger().Warnf("role: truncate at %d failed: %v", req.PrevLogIndex, err)
			return &rpc.AppendResponse{Term: core.CurrentTerm(), Succeeded: false}
		}
		for _, entry := range req.Entries {
			if _, err := l.Append(entry); err != nil {
				core.Logger().Errorf("role: append entry %d failed: %v", entry.Index, err)
				return &rpc.AppendResponse{Term: core.CurrentTerm(), Succeeded: false}
			}
		}
	}

	if req.CommitIndex > core.CommitIndex() {
		commit := req.CommitIndex
		if last := l.LastIndex(); commit > last {
			commit = last
		}
		core.SetCommitIndex(commit)
	}
	if req.GlobalIndex > core.GlobalIndex() {
		core.SetGlobalIndex(req.GlobalIndex)
	}

	return &rpc.AppendResponse{Term: core.CurrentTerm(), Succeeded: true, LogIndex: l.LastIndex()}
}

// notLeaderMembers returns the member list every redirect response hands
// back alongside a leader hint, so a client can retry against the right
// server without a second round trip to discover the cluster.
func notLeaderMembers(core Core) []raft.Member {
	return append(core.Cluster().ActiveMembers(), core.Cluster().PassiveMembers()...)
}

func notLeaderRegister(core Core) *rpc.RegisterResponse {
	return &rpc.RegisterResponse{Status: rpc.StatusNotLeader, Leader: core.Leader(), Members: notLeaderMembers(core)}
}

func notLeaderKeepAlive(core Core) *rpc.KeepAliveResponse {
	return &rpc.KeepAliveResponse{Status: rpc.StatusNotLeader, Leader: core.Leader(), Members: notLeaderMembers(core)}
}

func notLeaderCommand(core Core) *rpc.CommandResponse {
	return &rpc.CommandResponse{Status: rpc.StatusNotLeader}
}

func notLeaderQuery(core Core) *rpc.QueryResponse {
	return &rpc.QueryResponse{Status: rpc.StatusNotLeader}
}

func notLeaderMembership(core Core) *rpc.MembershipResponse {
	return &rpc.MembershipResponse{
		Status:  rpc.StatusNotLeader,
		Version: core.Cluster().Version(),
		Active:  core.Cluster().ActiveMembers(),
		Passive: core.Cluster().PassiveMembers(),
	}
}
