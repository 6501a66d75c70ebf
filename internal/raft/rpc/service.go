package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Server is the set of RPC handlers a raft server registers with the
// transport. It mirrors the generated xRaftServiceServer interface a
// protoc-gen-go-grpc run would have produced, hand-written here since this
// module never runs protoc (see DESIGN.md).
type Server interface {
	Vote(ctx context.Context, req *VoteRequest) (*VoteResponse, error)
	Poll(ctx context.Context, req *PollRequest) (*PollResponse, error)
	Append(ctx context.Context, req *AppendRequest) (*AppendResponse, error)
	Sync(ctx context.Context, req *AppendRequest) (*AppendResponse, error)
	Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error)
	KeepAlive(ctx context.Context, req *KeepAliveRequest) (*KeepAliveResponse, error)
	Join(ctx context.Context, req *MembershipRequest) (*MembershipResponse, error)
	Leave(ctx context.Context, req *MembershipRequest) (*MembershipResponse, error)
	Promote(ctx context.Context, req *MembershipRequest) (*MembershipResponse, error)
	Demote(ctx context.Context, req *MembershipRequest) (*MembershipResponse, error)
	Command(ctx context.Context, req *CommandRequest) (*CommandResponse, error)
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
	Publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error)
}

// ServiceName is the gRPC service name this package registers handlers
// under, in place of the ".proto"-declared service name protoc would emit.
const ServiceName = "raftcore.Raft"

func voteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(VoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Vote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Vote"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Vote(ctx, req.(*VoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func pollHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PollRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Poll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Poll"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Poll(ctx, req.(*PollRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func appendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AppendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Append(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Append"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Append(ctx, req.(*AppendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func syncHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AppendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Sync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Sync"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Sync(ctx, req.(*AppendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func registerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Register"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Register(ctx, req.(*RegisterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func keepAliveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(KeepAliveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).KeepAlive(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/KeepAlive"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).KeepAlive(ctx, req.(*KeepAliveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func joinHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MembershipRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Join(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Join"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Join(ctx, req.(*MembershipRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func leaveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MembershipRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Leave(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Leave"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Leave(ctx, req.(*MembershipRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func promoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MembershipRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Promote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Promote"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Promote(ctx, req.(*MembershipRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func demoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MembershipRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Demote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Demote"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Demote(ctx, req.(*MembershipRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func commandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CommandRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Command(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Command"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Command(ctx, req.(*CommandRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Query"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Query(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PublishRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Publish"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Publish(ctx, req.(*PublishRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc a protoc-gen-go-grpc run would have
// generated from a raft.proto file. It is written by hand against the Go
// structs in types.go, wired to the GobCodec registered in codec.go.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Vote", Handler: voteHandler},
		{MethodName: "Poll", Handler: pollHandler},
		{MethodName: "Append", Handler: appendHandler},
		{MethodName: "Sync", Handler: syncHandler},
		{MethodName: "Register", Handler: registerHandler},
		{MethodName: "KeepAlive", Handler: keepAliveHandler},
		{MethodName: "Join", Handler: joinHandler},
		{MethodName: "Leave", Handler: leaveHandler},
		{MethodName: "Promote", Handler: promoteHandler},
		{MethodName: "Demote", Handler: demoteHandler},
		{MethodName: "Command", Handler: commandHandler},
		{MethodName: "Query", Handler: queryHandler},
		{MethodName: "Publish", Handler: publishHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftcore/raft.proto",
}

// RegisterServer attaches srv's handlers to gs under ServiceDesc.
func RegisterServer(gs grpc.ServiceRegistrar, srv Server) {
	gs.RegisterService(&ServiceDesc, srv)
}

// Client is a thin wrapper around a *grpc.ClientConn exposing the same
// call shape as the generated xRaftServiceClient stub would have.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Vote(ctx context.Context, req *VoteRequest) (*VoteResponse, error) {
	out := new(VoteResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Vote", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Poll(ctx context.Context, req *PollRequest) (*PollResponse, error) {
	out := new(PollResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Poll", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Append(ctx context.Context, req *AppendRequest) (*AppendResponse, error) {
	out := new(AppendResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Append", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Sync(ctx context.Context, req *AppendRequest) (*AppendResponse, error) {
	out := new(AppendResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Sync", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	out := new(RegisterResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Register", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) KeepAlive(ctx context.Context, req *KeepAliveRequest) (*KeepAliveResponse, error) {
	out := new(KeepAliveResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/KeepAlive", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Join(ctx context.Context, req *MembershipRequest) (*MembershipResponse, error) {
	out := new(MembershipResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Join", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Leave(ctx context.Context, req *MembershipRequest) (*MembershipResponse, error) {
	out := new(MembershipResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Leave", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Promote(ctx context.Context, req *MembershipRequest) (*MembershipResponse, error) {
	out := new(MembershipResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Promote", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Demote(ctx context.Context, req *MembershipRequest) (*MembershipResponse, error) {
	out := new(MembershipResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Demote", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Command(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	out := new(CommandResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Command", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	out := new(QueryResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Query", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error) {
	out := new(PublishResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Publish", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
