package role

import (
	"context"
	"testing"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassiveNeverGrantsVotes(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	p := NewPassive(core)
	p.Open()
	defer p.Close()

	resp, err := p.Vote(context.Background(), &rpc.VoteRequest{Term: 1, Candidate: "node-2"})
	require.NoError(t, err)
	assert.False(t, resp.VoteGranted)
}

func TestPassiveAcceptsSync(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	p := NewPassive(core)
	p.Open()
	defer p.Close()

	resp, err := p.Sync(context.Background(), &rpc.AppendRequest{
		Term:   1,
		Leader: "node-2",
		Entries: []*raft.Entry{
			{Term: 1, Type: raft.EntryNoOp},
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.Succeeded)
	assert.Equal(t, uint64(1), core.Log().LastIndex())
}

func TestPassiveRejectsLinearizableQuery(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	p := NewPassive(core)
	p.Open()
	defer p.Close()

	resp, err := p.Query(context.Background(), &rpc.QueryRequest{Consistency: rpc.ConsistencyLinearizable})
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusNotLeader, resp.Status)
}

func TestPassiveServesSequentialQueryLocally(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.applyFn = func(entry *raft.Entry) (any, error) {
		return []byte("local-read"), nil
	}
	core.Sessions().Register(1, "conn-1", 0)

	p := NewPassive(core)
	p.Open()
	defer p.Close()

	resp, err := p.Query(context.Background(), &rpc.QueryRequest{Session: 1, Consistency: rpc.ConsistencySequential})
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusOK, resp.Status)
	assert.Equal(t, []byte("local-read"), resp.Result)
}
