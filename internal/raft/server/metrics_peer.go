package server

import (
	"context"

	"github.com/obreshkov/raftcore/internal/raft/metrics"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// meteredPeer wraps a dialed transport.Peer to record the RPC counters a
// server originates against it. Grounded on the teacher's
// internal/raft/server/transport.go, whose Transport.RequestVote and
// Transport.AppendEntries record the same counters on the outbound side,
// distinguishing a heartbeat from a real AppendEntries by whether the
// request carries log entries.
type meteredPeer struct {
	transport.Peer
	metrics *metrics.Metrics
}

func newMeteredPeer(p transport.Peer, m *metrics.Metrics) transport.Peer {
	if m == nil {
		return p
	}
	return &meteredPeer{Peer: p, metrics: m}
}

func (p *meteredPeer) Vote(ctx context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	p.metrics.RecordRequestVote()
	return p.Peer.Vote(ctx, req)
}

func (p *meteredPeer) Append(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	if len(req.Entries) == 0 {
		p.metrics.RecordHeartbeat()
	} else {
		p.metrics.RecordAppendEntries()
	}
	return p.Peer.Append(ctx, req)
}

func (p *meteredPeer) Sync(ctx context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	if len(req.Entries) == 0 {
		p.metrics.RecordHeartbeat()
	} else {
		p.metrics.RecordAppendEntries()
	}
	return p.Peer.Sync(ctx, req)
}
