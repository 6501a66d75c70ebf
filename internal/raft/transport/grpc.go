package transport

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// handlerAdapter bridges the RPCHandlers value given to Listen to the
// rpc.Server the ServiceDesc was registered against, delegating every call
// through a pointer to it. Nothing outside Listen holds that pointer, so the
// handlers stay the same for the listener's lifetime.
type handlerAdapter struct {
	current *RPCHandlers
}

func (h *handlerAdapter) Vote(ctx context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	return (*h.current).Vote(ctx, req)
}
func (h *handlerAdapter) Poll(ctx context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	return (*h.current).Poll(ctx, req)
}
func (h *handlerAdapter) Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return (*h.current).Append(ctx, req)
}
func (h *handlerAdapter) Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return (*h.current).Sync(ctx, req)
}
func (h *handlerAdapter) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return (*h.current).Register(ctx, req)
}
func (h *handlerAdapter) KeepAlive(ctx context.Context, req *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return (*h.current).KeepAlive(ctx, req)
}
func (h *handlerAdapter) Join(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return (*h.current).Join(ctx, req)
}
func (h *handlerAdapter) Leave(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return (*h.current).Leave(ctx, req)
}
func (h *handlerAdapter) Promote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return (*h.current).Promote(ctx, req)
}
func (h *handlerAdapter) Demote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return (*h.current).Demote(ctx, req)
}
func (h *handlerAdapter) Command(ctx context.Context, req *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	return (*h.current).Command(ctx, req)
}
func (h *handlerAdapter) Query(ctx context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return (*h.current).Query(ctx, req)
}
func (h *handlerAdapter) Publish(ctx context.Context, req *rpc.PublishRequest) (*rpc.PublishResponse, error) {
	return (*h.current).Publish(ctx, req)
}

// GRPCTransport is the real network transport: a *grpc.Server per Listen
// call and a new *grpc.ClientConn per Dial call, grounded on the
// teacher's server.StartServer/Transport (internal/raft/server/server.go,
// transport.go), generalized from a fixed two-RPC surface to the full
// rpc.Server handler set and wired to the gob codec in rpc/codec.go rather
// than protobuf.
type GRPCTransport struct{}

func NewGRPCTransport() *GRPCTransport { return &GRPCTransport{} }

type grpcListener struct {
	lis net.Listener
	srv *grpc.Server
}

func (l *grpcListener) Close() error {
	l.srv.GracefulStop()
	return l.lis.Close()
}

// Listen starts a gRPC server on addr, dispatching every call to handlers
// through a handlerAdapter. The handlers cannot be replaced afterwards;
// server.Server does its own role dispatch behind the single handler set.
func (t *GRPCTransport) Listen(addr string, handlers RPCHandlers) (io.Closer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", addr, err)
	}

	h := handlers
	adapter := &handlerAdapter{current: &h}

	srv := grpc.NewServer()
	rpc.RegisterServer(srv, adapter)

	go func() {
		_ = srv.Serve(lis)
	}()

	return &grpcListener{lis: lis, srv: srv}, nil
}

type grpcPeer struct {
	conn   *grpc.ClientConn
	client *rpc.Client
}

func (p *grpcPeer) Vote(ctx context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	return p.client.Vote(ctx, req)
}
func (p *grpcPeer) Poll(ctx context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	return p.client.Poll(ctx, req)
}
func (p *grpcPeer) Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return p.client.Append(ctx, req)
}
func (p *grpcPeer) Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return p.client.Sync(ctx, req)
}
func (p *grpcPeer) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return p.client.Register(ctx, req)
}
func (p *grpcPeer) KeepAlive(ctx context.Context, req *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return p.client.KeepAlive(ctx, req)
}
func (p *grpcPeer) Join(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return p.client.Join(ctx, req)
}
func (p *grpcPeer) Leave(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return p.client.Leave(ctx, req)
}
func (p *grpcPeer) Promote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return p.client.Promote(ctx, req)
}
func (p *grpcPeer) Demote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return p.client.Demote(ctx, req)
}
func (p *grpcPeer) Command(ctx context.Context, req *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	return p.client.Command(ctx, req)
}
func (p *grpcPeer) Query(ctx context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return p.client.Query(ctx, req)
}
func (p *grpcPeer) Publish(ctx context.Context, req *rpc.PublishRequest) (*rpc.PublishResponse, error) {
	return p.client.Publish(ctx, req)
}
func (p *grpcPeer) Close() error { return p.conn.Close() }

func (t *GRPCTransport) Dial(ctx context.Context, addr string) (Peer, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &grpcPeer{conn: conn, client: rpc.NewClient(conn)}, nil
}
