package mocks

import (
	"context"
	"sync"

	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

// MockPeer is a mock implementation of transport.Peer for testing a role's
// RPC-sending behavior (retry on failure, quorum counting) without a real
// network. Each method records its request and returns the canned response
// or error configured for it.
type MockPeer struct {
	mu sync.RWMutex

	VoteRequests []*rpc.VoteRequest
	VoteResponse *rpc.VoteResponse
	VoteError    error

	PollRequests []*rpc.PollRequest
	PollResponse *rpc.PollResponse
	PollError    error

	AppendRequests []*rpc.AppendRequest
	AppendResponse *rpc.AppendResponse
	AppendError    error

	SyncRequests []*rpc.AppendRequest
	SyncResponse *rpc.AppendResponse
	SyncError    error

	RegisterRequests []*rpc.RegisterRequest
	RegisterResponse *rpc.RegisterResponse
	RegisterError    error

	KeepAliveRequests []*rpc.KeepAliveRequest
	KeepAliveResponse *rpc.KeepAliveResponse
	KeepAliveError    error

	JoinRequests []*rpc.MembershipRequest
	JoinResponse *rpc.MembershipResponse
	JoinError    error

	LeaveRequests []*rpc.MembershipRequest
	LeaveResponse *rpc.MembershipResponse
	LeaveError    error

	PromoteRequests []*rpc.MembershipRequest
	PromoteResponse *rpc.MembershipResponse
	PromoteError    error

	DemoteRequests []*rpc.MembershipRequest
	DemoteResponse *rpc.MembershipResponse
	DemoteError    error

	CommandRequests []*rpc.CommandRequest
	CommandResponse *rpc.CommandResponse
	CommandError    error

	QueryRequests []*rpc.QueryRequest
	QueryResponse *rpc.QueryResponse
	QueryError    error

	PublishRequests []*rpc.PublishRequest
	PublishResponse *rpc.PublishResponse
	PublishError    error

	CloseCallCount int
	CloseError     error
}

// NewMockPeer creates a new mock peer. Callers set the *Response/*Error
// fields for whichever RPCs the test under way exercises.
func NewMockPeer() *MockPeer {
	return &MockPeer{}
}

func (p *MockPeer) Vote(_ context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoteRequests = append(p.VoteRequests, req)
	if p.VoteError != nil {
		return nil, p.VoteError
	}
	return p.VoteResponse, nil
}

func (p *MockPeer) Poll(_ context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PollRequests = append(p.PollRequests, req)
	if p.PollError != nil {
		return nil, p.PollError
	}
	return p.PollResponse, nil
}

func (p *MockPeer) Append(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AppendRequests = append(p.AppendRequests, req)
	if p.AppendError != nil {
		return nil, p.AppendError
	}
	return p.AppendResponse, nil
}

func (p *MockPeer) Sync(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SyncRequests = append(p.SyncRequests, req)
	if p.SyncError != nil {
		return nil, p.SyncError
	}
	return p.SyncResponse, nil
}

func (p *MockPeer) Register(_ context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RegisterRequests = append(p.RegisterRequests, req)
	if p.RegisterError != nil {
		return nil, p.RegisterError
	}
	return p.RegisterResponse, nil
}

func (p *MockPeer) KeepAlive(_ context.Context, req *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.KeepAliveRequests = append(p.KeepAliveRequests, req)
	if p.KeepAliveError != nil {
		return nil, p.KeepAliveError
	}
	return p.KeepAliveResponse, nil
}

func (p *MockPeer) Join(_ context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.JoinRequests = append(p.JoinRequests, req)
	if p.JoinError != nil {
		return nil, p.JoinError
	}
	return p.JoinResponse, nil
}

func (p *MockPeer) Leave(_ context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LeaveRequests = append(p.LeaveRequests, req)
	if p.LeaveError != nil {
		return nil, p.LeaveError
	}
	return p.LeaveResponse, nil
}

func (p *MockPeer) Promote(_ context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PromoteRequests = append(p.PromoteRequests, req)
	if p.PromoteError != nil {
		return nil, p.PromoteError
	}
	return p.PromoteResponse, nil
}

func (p *MockPeer) Demote(_ context.Context, req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DemoteRequests = append(p.DemoteRequests, req)
	if p.DemoteError != nil {
		return nil, p.DemoteError
	}
	return p.DemoteResponse, nil
}

func (p *MockPeer) Command(_ context.Context, req *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CommandRequests = append(p.CommandRequests, req)
	if p.CommandError != nil {
		return nil, p.CommandError
	}
	return p.CommandResponse, nil
}

func (p *MockPeer) Query(_ context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.QueryRequests = append(p.QueryRequests, req)
	if p.QueryError != nil {
		return nil, p.QueryError
	}
	return p.QueryResponse, nil
}

func (p *MockPeer) Publish(_ context.Context, req *rpc.PublishRequest) (*rpc.PublishResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PublishRequests = append(p.PublishRequests, req)
	if p.PublishError != nil {
		return nil, p.PublishError
	}
	return p.PublishResponse, nil
}

func (p *MockPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return p.CloseError
}

// Reset clears all recorded call history and canned responses/errors.
func (p *MockPeer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.VoteRequests, p.VoteResponse, p.VoteError = nil, nil, nil
	p.PollRequests, p.PollResponse, p.PollError = nil, nil, nil
	p.AppendRequests, p.AppendResponse, p.AppendError = nil, nil, nil
	p.SyncRequests, p.SyncResponse, p.SyncError = nil, nil, nil
	p.RegisterRequests, p.RegisterResponse, p.RegisterError = nil, nil, nil
	p.KeepAliveRequests, p.KeepAliveResponse, p.KeepAliveError = nil, nil, nil
	p.JoinRequests, p.JoinResponse, p.JoinError = nil, nil, nil
	p.LeaveRequests, p.LeaveResponse, p.LeaveError = nil, nil, nil
	p.PromoteRequests, p.PromoteResponse, p.PromoteError = nil, nil, nil
	p.DemoteRequests, p.DemoteResponse, p.DemoteError = nil, nil, nil
	p.CommandRequests, p.CommandResponse, p.CommandError = nil, nil, nil
	p.QueryRequests, p.QueryResponse, p.QueryError = nil, nil, nil
	p.PublishRequests, p.PublishResponse, p.PublishError = nil, nil, nil
	p.CloseCallCount, p.CloseError = 0, nil
}
