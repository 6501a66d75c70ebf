// Package mocks provides hand-written test doubles for the interfaces a
// role or server test wants to drive without a real KV store or network,
// grounded on the teacher's internal/raft/mocks package: plain structs
// guarded by a sync.RWMutex, exported fields recording call history and
// counts, a NewMockX constructor, and error-injection fields checked before
// the recorded behavior runs.
package mocks

import (
	"sync"

	"github.com/obreshkov/raftcore/internal/raft/session"
	"github.com/obreshkov/raftcore/internal/raft/statemachine"
)

// MockStateMachine is a mock implementation of statemachine.StateMachine
// for testing role and server behavior without a real application.
type MockStateMachine struct {
	mu sync.RWMutex

	// AppliedCommits records every Commit passed to Apply, in order.
	AppliedCommits []statemachine.Commit
	ApplyCallCount int
	// ApplyResults, keyed by call index (0-based), overrides the result
	// Apply returns for that call. Missing entries return (nil, nil).
	ApplyResults map[int]any
	ApplyError   error

	FilterCallCount int
	// FilterFunc, when set, decides Filter's return value. Otherwise
	// Filter always returns false (never discard).
	FilterFunc func(commit statemachine.Commit, ctx statemachine.CompactionContext) bool

	RegisteredSessions []*session.Session
	ExpiredSessions    []*session.Session
	ClosedSessions     []*session.Session
}

// NewMockStateMachine creates a new mock state machine.
func NewMockStateMachine() *MockStateMachine {
	return &MockStateMachine{
		ApplyResults: make(map[int]any),
	}
}

func (m *MockStateMachine) Apply(commit statemachine.Commit) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ApplyError != nil {
		return nil, m.ApplyError
	}

	call := m.ApplyCallCount
	m.ApplyCallCount++
	m.AppliedCommits = append(m.AppliedCommits, commit)
	return m.ApplyResults[call], nil
}

func (m *MockStateMachine) Filter(commit statemachine.Commit, ctx statemachine.CompactionContext) bool {
	m.mu.Lock()
	m.FilterCallCount++
	fn := m.FilterFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(commit, ctx)
	}
	return false
}

func (m *MockStateMachine) Register(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RegisteredSessions = append(m.RegisteredSessions, sess)
}

func (m *MockStateMachine) Expire(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExpiredSessions = append(m.ExpiredSessions, sess)
}

func (m *MockStateMachine) Close(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClosedSessions = append(m.ClosedSessions, sess)
}

// Reset clears all recorded call history and injected behavior.
func (m *MockStateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppliedCommits = nil
	m.ApplyCallCount = 0
	m.ApplyResults = make(map[int]any)
	m.ApplyError = nil
	m.FilterCallCount = 0
	m.FilterFunc = nil
	m.RegisteredSessions = nil
	m.ExpiredSessions = nil
	m.ClosedSessions = nil
}

var _ statemachine.StateMachine = (*MockStateMachine)(nil)
