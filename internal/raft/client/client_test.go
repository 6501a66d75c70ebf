package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obreshkov/raftcore/internal/raft/client"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/obreshkov/raftcore/internal/raft/server"
	"github.com/obreshkov/raftcore/internal/raft/statemachine"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// startSingleNode brings up a single-member, self-electing server on a
// LocalNetwork and returns it already open, registered for cleanup.
func startSingleNode(t *testing.T, net *transport.LocalNetwork, addr string) *server.Server {
	t.Helper()

	srv, err := server.New(server.Config{
		ID:                   "s1",
		Host:                 addr,
		Port:                 0,
		BindAddress:          addr,
		DataDir:              t.TempDir(),
		Bootstrap:            true,
		ElectionTimeoutMin:   15 * time.Millisecond,
		ElectionTimeoutMax:   30 * time.Millisecond,
		HeartbeatInterval:    10 * time.Millisecond,
		SessionTimeout:       400 * time.Millisecond,
		SessionSweepInterval: 40 * time.Millisecond,
		StateMachine:         statemachine.NewKVStateMachine(),
		Transport:            transport.NewLocalTransport(net, addr),
		Logger:               logging.Noop(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Open())
	t.Cleanup(func() { srv.Close() })

	require.Eventually(t, func() bool {
		return srv.Leader() == "s1"
	}, time.Second, 5*time.Millisecond, "node never elected itself leader")
	return srv
}

func newClient(t *testing.T, net *transport.LocalNetwork, seed string) *client.Client {
	t.Helper()
	c := client.New(client.Config{
		Seeds:          []string{seed},
		Transport:      transport.NewLocalTransport(net, ""),
		Logger:         logging.Noop(),
		SessionTimeout: 400 * time.Millisecond,
		RequestTimeout: 200 * time.Millisecond,
		RetryBackoff:   5 * time.Millisecond,
	})
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientCommandAndQueryRoundTrip(t *testing.T) {
	net := transport.NewLocalNetwork()
	addr := "local-s1:1"
	startSingleNode(t, net, addr)

	c := newClient(t, net, addr)

	setOp, err := statemachine.EncodeKVOperation(statemachine.KVOperation{Code: statemachine.OpSet, Key: "k", Value: "v"})
	require.NoError(t, err)
	_, err = c.Command(context.Background(), setOp)
	require.NoError(t, err)

	getOp, err := statemachine.EncodeKVOperation(statemachine.KVOperation{Code: statemachine.OpGet, Key: "k"})
	require.NoError(t, err)
	result, err := c.Query(context.Background(), getOp, rpc.ConsistencyLinearizable)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), result)
}

func TestClientSequentialCommandsObserveEachOthersWrites(t *testing.T) {
	net := transport.NewLocalNetwork()
	addr := "local-s1:1"
	startSingleNode(t, net, addr)

	c := newClient(t, net, addr)

	firstSet, err := statemachine.EncodeKVOperation(statemachine.KVOperation{Code: statemachine.OpSet, Key: "k", Value: "first"})
	require.NoError(t, err)
	_, err = c.Command(context.Background(), firstSet)
	require.NoError(t, err)

	secondSet, err := statemachine.EncodeKVOperation(statemachine.KVOperation{Code: statemachine.OpSet, Key: "k", Value: "second"})
	require.NoError(t, err)
	_, err = c.Command(context.Background(), secondSet)
	require.NoError(t, err)

	getOp, err := statemachine.EncodeKVOperation(statemachine.KVOperation{Code: statemachine.OpGet, Key: "k"})
	require.NoError(t, err)
	result, err := c.Query(context.Background(), getOp, rpc.ConsistencyLinearizable)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), result)
}

func TestClientSurvivesKeepAlive(t *testing.T) {
	net := transport.NewLocalNetwork()
	addr := "local-s1:1"
	startSingleNode(t, net, addr)

	c := newClient(t, net, addr)

	// Outlive one keep-alive interval (sessionTimeout/2 = 200ms) and
	// confirm the session is still usable afterward.
	time.Sleep(250 * time.Millisecond)

	setOp, err := statemachine.EncodeKVOperation(statemachine.KVOperation{Code: statemachine.OpSet, Key: "k", Value: "v"})
	require.NoError(t, err)
	_, err = c.Command(context.Background(), setOp)
	require.NoError(t, err)
}
