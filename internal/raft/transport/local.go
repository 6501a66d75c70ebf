package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

// LocalNetwork is the shared registry LocalTransport instances dial into.
// Tests construct one LocalNetwork and hand every simulated server its own
// LocalTransport bound to it, so servers can reach each other by address
// without touching a socket.
type LocalNetwork struct {
	mu    sync.RWMutex
	nodes map[string]chan localCall
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{nodes: make(map[string]chan localCall)}
}

type localCall struct {
	method string
	req    any
	reply  chan localReply
}

type localReply struct {
	resp any
	err  error
}

// LocalTransport is the in-process Transport used by tests and the local
// demo cluster, grounded on the single-threaded-loop dispatch model of
// spec §5: each Listen call starts a goroutine draining a request channel
// and invoking the currently installed handlers one at a time, the same
// shape as the consensus loop it stands in for.
type LocalTransport struct {
	net  *LocalNetwork
	addr string
}

func NewLocalTransport(net *LocalNetwork, addr string) *LocalTransport {
	return &LocalTransport{net: net, addr: addr}
}

type localListener struct {
	net  *LocalNetwork
	addr string
	done chan struct{}
}

func (l *localListener) Close() error {
	close(l.done)
	l.net.mu.Lock()
	delete(l.net.nodes, l.addr)
	l.net.mu.Unlock()
	return nil
}

func (t *LocalTransport) Listen(addr string, handlers RPCHandlers) (io.Closer, error) {
	ch := make(chan localCall, 64)

	t.net.mu.Lock()
	t.net.nodes[addr] = ch
	t.net.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case call := <-ch:
				resp, err := dispatch(handlers, call.method, call.req)
				call.reply <- localReply{resp: resp, err: err}
			case <-done:
				return
			}
		}
	}()

	return &localListener{net: t.net, addr: addr, done: done}, nil
}

func dispatch(h RPCHandlers, method string, req any) (any, error) {
	ctx := context.Background()
	switch method {
	case "Vote":
		return h.Vote(ctx, req.(*rpc.VoteRequest))
	case "Poll":
		return h.Poll(ctx, req.(*rpc.PollRequest))
	case "Append":
		return h.Append(ctx, req.(*rpc.AppendRequest))
	case "Sync":
		return h.Sync(ctx, req.(*rpc.AppendRequest))
	case "Register":
		return h.Register(ctx, req.(*rpc.RegisterRequest))
	case "KeepAlive":
		return h.KeepAlive(ctx, req.(*rpc.KeepAliveRequest))
	case "Join":
		return h.Join(ctx, req.(*rpc.MembershipRequest))
	case "Leave":
		return h.Leave(ctx, req.(*rpc.MembershipRequest))
	case "Promote":
		return h.Promote(ctx, req.(*rpc.MembershipRequest))
	case "Demote":
		return h.Demote(ctx, req.(*rpc.MembershipRequest))
	case "Command":
		return h.Command(ctx, req.(*rpc.CommandRequest))
	case "Query":
		return h.Query(ctx, req.(*rpc.QueryRequest))
	case "Publish":
		return h.Publish(ctx, req.(*rpc.PublishRequest))
	default:
		return nil, fmt.Errorf("transport: unknown method %q", method)
	}
}

type localPeer struct {
	net    *LocalNetwork
	target string
}

func (t *LocalTransport) Dial(ctx context.Context, addr string) (Peer, error) {
	t.net.mu.RLock()
	_, ok := t.net.nodes[addr]
	t.net.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: no listener at %s", addr)
	}
	return &localPeer{net: t.net, target: addr}, nil
}

func (p *localPeer) call(ctx context.Context, method string, req any) (any, error) {
	p.net.mu.RLock()
	ch, ok := p.net.nodes[p.target]
	p.net.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: peer %s not found (likely removed from cluster)", p.target)
	}

	reply := make(chan localReply, 1)
	select {
	case ch <- localCall{method: method, req: req, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *localPeer) Vote(ctx context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	resp, err := p.call(ctx, "Vote", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.VoteResponse), nil
}

func (p *localPeer) Poll(ctx context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	resp, err := p.call(ctx, "Poll", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.PollResponse), nil
}

func (p *localPeer) Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	resp, err := p.call(ctx, "Append", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.AppendResponse), nil
}

func (p *localPeer) Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	resp, err := p.call(ctx, "Sync", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.AppendResponse), nil
}

func (p *localPeer) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	resp, err := p.call(ctx, "Register", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.RegisterResponse), nil
}

func (p *localPeer) KeepAlive(ctx context.Context, req *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	resp, err := p.call(ctx, "KeepAlive", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.KeepAliveResponse), nil
}

func (p *localPeer) Join(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	resp, err := p.call(ctx, "Join", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.MembershipResponse), nil
}

func (p *localPeer) Leave(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	resp, err := p.call(ctx, "Leave", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.MembershipResponse), nil
}

func (p *localPeer) Promote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	resp, err := p.call(ctx, "Promote", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.MembershipResponse), nil
}

func (p *localPeer) Demote(ctx context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	resp, err := p.call(ctx, "Demote", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.MembershipResponse), nil
}

func (p *localPeer) Command(ctx context.Context, req *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	resp, err := p.call(ctx, "Command", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.CommandResponse), nil
}

func (p *localPeer) Query(ctx context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	resp, err := p.call(ctx, "Query", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.QueryResponse), nil
}

func (p *localPeer) Publish(ctx context.Context, req *rpc.PublishRequest) (*rpc.PublishResponse, error) {
	resp, err := p.call(ctx, "Publish", req)
	if err != nil {
		return nil, err
	}
	return resp.(*rpc.PublishResponse), nil
}

func (p *localPeer) Close() error { return nil }
