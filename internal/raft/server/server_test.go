package server_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/mocks"
	"github.com/obreshkov/raftcore/internal/raft/server"
	"github.com/obreshkov/raftcore/internal/raft/statemachine"
)

func newTestServer(t *testing.T, sm *mocks.MockStateMachine) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{
		ID:           "s1",
		Host:         "127.0.0.1",
		Port:         0,
		DataDir:      t.TempDir(),
		Bootstrap:    true,
		StateMachine: sm,
		Logger:       logging.Noop(),
	})
	require.NoError(t, err)
	return srv
}

func TestServerApplyCommandDispatchesToStateMachine(t *testing.T) {
	sm := mocks.NewMockStateMachine()
	sm.ApplyResults[0] = []byte("ok")
	srv := newTestServer(t, sm)

	result, err := srv.Apply(&raft.Entry{Type: raft.EntryCommand, Index: 5, Session: 1, Payload: []byte("op")})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), result)

	require.Len(t, sm.AppliedCommits, 1)
	assert.Equal(t, uint64(5), sm.AppliedCommits[0].Index)
	assert.Equal(t, uint64(1), sm.AppliedCommits[0].Session)
}

func TestServerApplyRegisterNotifiesStateMachine(t *testing.T) {
	sm := mocks.NewMockStateMachine()
	srv := newTestServer(t, sm)

	sess := srv.Sessions().Register(7, "conn-1", 0)

	_, err := srv.Apply(&raft.Entry{Type: raft.EntryRegister, Index: 7})
	require.NoError(t, err)

	require.Len(t, sm.RegisteredSessions, 1)
	assert.Same(t, sess, sm.RegisteredSessions[0])
}

func TestServerApplyExpireRemovesSessionAndNotifiesStateMachine(t *testing.T) {
	sm := mocks.NewMockStateMachine()
	srv := newTestServer(t, sm)

	srv.Sessions().Register(9, "conn-2", 0)

	_, err := srv.Apply(&raft.Entry{Type: raft.EntryExpire, Session: 9})
	require.NoError(t, err)

	require.Len(t, sm.ExpiredSessions, 1)
	assert.Equal(t, uint64(9), sm.ExpiredSessions[0].ID())

	_, ok := srv.Sessions().Get(9)
	assert.False(t, ok, "expired session should be removed from the table")
}

func TestServerMetricsRecordsExpiredSessionCount(t *testing.T) {
	sm := mocks.NewMockStateMachine()
	srv := newTestServer(t, sm)
	srv.Sessions().Register(3, "conn-3", 0)

	_, err := srv.Apply(&raft.Entry{Type: raft.EntryExpire, Session: 3})
	require.NoError(t, err)

	report := srv.Metrics().GetReport(1)
	assert.Equal(t, uint64(1), report.SessionsExpired)
}

var _ statemachine.StateMachine = (*mocks.MockStateMachine)(nil)
