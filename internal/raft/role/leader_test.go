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

func TestLeaderSingleNodeCommitsNoOpOnOpen(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	l := NewLeader(core)
	core.active = l
	l.Open()
	defer l.Close()

	assert.Equal(t, uint64(1), core.CommitIndex())
	assert.Equal(t, uint64(1), core.GlobalIndex())
}

func TestLeaderRegisterAssignsSessionID(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	l := NewLeader(core)
	core.active = l
	l.Open()
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := l.Register(ctx, &rpc.RegisterRequest{ConnectionID: "conn-1"})
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusOK, resp.Status)
	assert.NotZero(t, resp.Session)

	sess, ok := core.Sessions().Get(resp.Session)
	require.True(t, ok)
	assert.Equal(t, "conn-1", sess.ConnectionID())
}

func TestLeaderCommandAppliesAndReturnsResult(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.applyFn = func(entry *raft.Entry) (any, error) {
		return []byte("applied"), nil
	}
	l := NewLeader(core)
	core.active = l
	l.Open()
	defer l.Close()

	core.Sessions().Register(1, "conn-1", 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := l.Command(ctx, &rpc.CommandRequest{Session: 1, Sequence: 1, Operation: []byte("op")})
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusOK, resp.Status)
	assert.Equal(t, []byte("applied"), resp.Result)
}

func TestLeaderCommandRejectsUnknownSession(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	l := NewLeader(core)
	core.active = l
	l.Open()
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := l.Command(ctx, &rpc.CommandRequest{Session: 999, Sequence: 1})
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusUnknownSession, resp.Status)
}

func TestLeaderCommandDedupsRetriedSequence(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	calls := 0
	core.applyFn = func(entry *raft.Entry) (any, error) {
		calls++
		return []byte("applied"), nil
	}
	l := NewLeader(core)
	core.active = l
	l.Open()
	defer l.Close()

	core.Sessions().Register(1, "conn-1", 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, err := l.Command(ctx, &rpc.CommandRequest{Session: 1, Sequence: 1, Operation: []byte("op")})
	require.NoError(t, err)
	require.Equal(t, rpc.StatusOK, first.Status)

	second, err := l.Command(ctx, &rpc.CommandRequest{Session: 1, Sequence: 1, Operation: []byte("op")})
	require.NoError(t, err)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, 1, calls)
}

func TestLeaderStepsDownOnHigherTermAppend(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	l := NewLeader(core)
	core.active = l
	l.Open()
	defer l.Close()

	resp, err := l.Append(context.Background(), &rpc.AppendRequest{Term: core.CurrentTerm() + 1, Leader: "node-2"})
	require.NoError(t, err)
	assert.True(t, resp.Succeeded)
	assert.Equal(t, RoleFollower, core.lastTransition())
}

func TestLeaderJoinAddsMemberAndCommitsOnSingleNodeQuorum(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	l := NewLeader(core)
	core.active = l
	l.Open()
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := l.Join(ctx, &rpc.MembershipRequest{Member: member("node-2")})
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusOK, resp.Status)
	assert.True(t, core.Cluster().IsActive("node-2"))
}

func TestLeaderRejectsSecondConfigurationWhileOneOutstanding(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.cl.Configure(0, []raft.Member{member("node-1"), member("node-2")}, nil)
	// node-2 never responds, so the configOutstanding flag from the first
	// call below is never cleared by a commit — quorum of 2 is required
	// but only node-1's own match counts.
	l := NewLeader(core)
	core.active = l
	l.Open()
	defer l.Close()

	ctx1, cancel1 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel1()
	go l.Join(ctx1, &rpc.MembershipRequest{Member: member("node-3")})

	// Give the first proposal a moment to flip configOutstanding before
	// firing the second.
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.configOutstanding
	}, time.Second, 5*time.Millisecond)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	resp, err := l.Join(ctx2, &rpc.MembershipRequest{Member: member("node-4")})
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusError, resp.Status)
}
