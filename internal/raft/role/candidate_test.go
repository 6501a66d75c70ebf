package role

import (
	"context"
	"testing"
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateSingleNodeBecomesLeaderImmediately(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.Transition(NewCandidate(core))

	require.Eventually(t, func() bool {
		return core.lastTransition() == RoleLeader
	}, time.Second, 5*time.Millisecond)
}

func TestCandidateBecomesLeaderOnQuorumOfVotes(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.cl.Configure(0, []raft.Member{member("node-1"), member("node-2"), member("node-3")}, nil)
	core.peers["node-2"] = &fakePeer{voteFn: func(req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
		return &rpc.VoteResponse{Term: req.Term, VoteGranted: true}, nil
	}}
	core.peers["node-3"] = &fakePeer{voteFn: func(req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
		return &rpc.VoteResponse{Term: req.Term, VoteGranted: false}, nil
	}}

	core.Transition(NewCandidate(core))

	require.Eventually(t, func() bool {
		return core.lastTransition() == RoleLeader
	}, time.Second, 5*time.Millisecond)
}

func TestCandidateStepsDownOnHigherTermVoteResponse(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.cl.Configure(0, []raft.Member{member("node-1"), member("node-2")}, nil)
	core.peers["node-2"] = &fakePeer{voteFn: func(req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
		return &rpc.VoteResponse{Term: req.Term + 5, VoteGranted: false}, nil
	}}

	core.Transition(NewCandidate(core))

	require.Eventually(t, func() bool {
		return core.lastTransition() == RoleFollower
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, core.CurrentTerm(), uint64(6))
}

func TestCandidateStepsDownOnAppendFromNewerTerm(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	c := NewCandidate(core)
	core.Transition(c)

	resp, err := c.Append(context.Background(), &rpc.AppendRequest{Term: core.CurrentTerm() + 1, Leader: "node-2"})
	require.NoError(t, err)
	assert.True(t, resp.Succeeded)
	assert.Equal(t, RoleFollower, core.lastTransition())
}
