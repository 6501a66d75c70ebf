package transport

import (
	"context"
	"testing"
	"time"

	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandlers struct {
	rpc.Server
	voteTerm uint64
}

func (s *stubHandlers) Vote(ctx context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	return &rpc.VoteResponse{Term: s.voteTerm, VoteGranted: true}, nil
}

func (s *stubHandlers) Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return &rpc.AppendResponse{Term: req.Term, Succeeded: true}, nil
}

func TestLocalTransportRoundTrip(t *testing.T) {
	net := NewLocalNetwork()
	server := NewLocalTransport(net, "node-1")

	closer, err := server.Listen("node-1", &stubHandlers{voteTerm: 3})
	require.NoError(t, err)
	defer closer.Close()

	client := NewLocalTransport(net, "node-2")
	peer, err := client.Dial(context.Background(), "node-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := peer.Vote(ctx, &rpc.VoteRequest{Term: 3, Candidate: "node-2"})
	require.NoError(t, err)
	assert.True(t, resp.VoteGranted)
	assert.Equal(t, uint64(3), resp.Term)

	appendResp, err := peer.Append(ctx, &rpc.AppendRequest{Term: 3})
	require.NoError(t, err)
	assert.True(t, appendResp.Succeeded)
}

func TestLocalTransportDialUnknownAddrFails(t *testing.T) {
	net := NewLocalNetwork()
	client := NewLocalTransport(net, "node-2")
	_, err := client.Dial(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestLocalTransportCloseRemovesListener(t *testing.T) {
	net := NewLocalNetwork()
	server := NewLocalTransport(net, "node-1")
	closer, err := server.Listen("node-1", &stubHandlers{})
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	client := NewLocalTransport(net, "node-2")
	_, err = client.Dial(context.Background(), "node-1")
	assert.Error(t, err)
}
