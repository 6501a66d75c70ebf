// Package transport provides the connection-oriented request/response
// layer the role state machine and client core depend on through a narrow
// interface (spec §6), plus two concrete implementations: a real gRPC
// transport and an in-process transport used by tests and the local demo
// cluster.
package transport

import (
	"context"
	"io"

	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

// Peer is a single outbound connection to another server, exposing every
// RPC named in spec §6's table.
type Peer interface {
	Vote(ctx context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error)
	Poll(ctx context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error)
	Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error)
	Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error)
	Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error)
	KeepAlive(ctx context.Context, req *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error)
	Join(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	Leave(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	Promote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	Demote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error)
	Command(ctx context.Context, req *rpc.CommandRequest) (*rpc.CommandResponse, error)
	Query(ctx context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error)
	Publish(ctx context.Context, req *rpc.PublishRequest) (*rpc.PublishResponse, error)
	Close() error
}

// RPCHandlers is the server-side handler set passed to Listen. It is
// installed once per listener; server.Server passes itself and routes each
// call to whichever role is active, so a role transition does not touch the
// transport.
type RPCHandlers = rpc.Server

// Transport is the narrow interface the server context depends on. Two
// implementations are provided: GRPCTransport (grpc.go) and LocalTransport
// (local.go).
type Transport interface {
	Listen(addr string, handlers RPCHandlers) (io.Closer, error)
	Dial(ctx context.Context, addr string) (Peer, error)
}
