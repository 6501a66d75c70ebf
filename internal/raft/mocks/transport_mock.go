package mocks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// MockTransport is a mock implementation of transport.Transport that hands
// out a pre-registered MockPeer for each dialed address instead of opening
// a real connection, letting a test script exactly what every peer
// responds with.
type MockTransport struct {
	mu sync.RWMutex

	// Peers maps an address to the MockPeer Dial returns for it. Register
	// entries with RegisterPeer before the code under test dials them.
	Peers map[string]*MockPeer

	DialRequests []string
	DialError    error

	ListenCallCount int
	ListenError     error
}

// NewMockTransport creates a new mock transport with no peers registered.
func NewMockTransport() *MockTransport {
	return &MockTransport{Peers: make(map[string]*MockPeer)}
}

// RegisterPeer makes peer the MockPeer returned when addr is dialed.
func (t *MockTransport) RegisterPeer(addr string, peer *MockPeer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Peers[addr] = peer
}

func (t *MockTransport) Listen(_ string, _ transport.RPCHandlers) (io.Closer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ListenCallCount++
	if t.ListenError != nil {
		return nil, t.ListenError
	}
	return io.NopCloser(nil), nil
}

func (t *MockTransport) Dial(_ context.Context, addr string) (transport.Peer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DialRequests = append(t.DialRequests, addr)
	if t.DialError != nil {
		return nil, t.DialError
	}
	peer, ok := t.Peers[addr]
	if !ok {
		return nil, fmt.Errorf("mocks: no peer registered for %s", addr)
	}
	return peer, nil
}

// Reset clears all recorded call history, leaving registered peers intact.
func (t *MockTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DialRequests = nil
	t.DialError = nil
	t.ListenCallCount = 0
	t.ListenError = nil
}

var (
	_ transport.Transport = (*MockTransport)(nil)
	_ transport.Peer      = (*MockPeer)(nil)
)
