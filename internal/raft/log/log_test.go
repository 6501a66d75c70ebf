package log

import (
	"testing"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendAndGet(t *testing.T) {
	l, err := Open(t.TempDir(), 4, logging.Noop())
	require.NoError(t, err)
	defer l.Close()

	idx, err := l.Append(&raft.Entry{Term: 1, Type: raft.EntryCommand, Session: 7, Sequence: 1, Payload: []byte("set x 1")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), idx)

	entry, ok := l.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.Term)
	assert.Equal(t, raft.EntryCommand, entry.Type)
	assert.Equal(t, uint64(7), entry.Session)
	assert.Equal(t, []byte("set x 1"), entry.Payload)

	assert.Equal(t, uint64(1), l.FirstIndex())
	assert.Equal(t, uint64(1), l.LastIndex())
	assert.True(t, l.Contains(1))
	assert.False(t, l.Contains(2))
}

func TestLogRotatesSegments(t *testing.T) {
	l, err := Open(t.TempDir(), 2, logging.Noop())
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		_, err := l.Append(&raft.Entry{Term: 1, Type: raft.EntryNoOp})
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(5), l.LastIndex())
	assert.True(t, len(l.segments) >= 3)

	for i := uint64(1); i <= 5; i++ {
		_, ok := l.Get(i)
		assert.True(t, ok, "index %d should be retrievable", i)
	}
}

func TestLogTruncate(t *testing.T) {
	l, err := Open(t.TempDir(), 8, logging.Noop())
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 4; i++ {
		_, err := l.Append(&raft.Entry{Term: 1, Type: raft.EntryNoOp})
		require.NoError(t, err)
	}

	require.NoError(t, l.Truncate(2))
	assert.Equal(t, uint64(2), l.LastIndex())
	assert.False(t, l.Contains(3))
	assert.False(t, l.Contains(4))

	_, ok := l.Get(2)
	assert.True(t, ok)
}

func TestLogTruncateBelowAppliedFails(t *testing.T) {
	l, err := Open(t.TempDir(), 8, logging.Noop())
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 4; i++ {
		_, err := l.Append(&raft.Entry{Term: 1, Type: raft.EntryNoOp})
		require.NoError(t, err)
	}
	require.NoError(t, l.SetLastApplied(3))

	err = l.Truncate(1)
	assert.Error(t, err)
}

func TestLogReopenPreservesEntries(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, 4, logging.Noop())
	require.NoError(t, err)

	_, err = l.Append(&raft.Entry{Term: 1, Type: raft.EntryRegister, ConnectionID: "c1", Timestamp: 42})
	require.NoError(t, err)
	require.NoError(t, l.Sync())
	require.NoError(t, l.Close())

	reopened, err := Open(dir, 4, logging.Noop())
	require.NoError(t, err)
	defer reopened.Close()

	entry, ok := reopened.Get(1)
	require.True(t, ok)
	assert.Equal(t, "c1", entry.ConnectionID)
	assert.Equal(t, int64(42), entry.Timestamp)
}

func TestLogTermAt(t *testing.T) {
	l, err := Open(t.TempDir(), 4, logging.Noop())
	require.NoError(t, err)
	defer l.Close()

	term, ok := l.TermAt(0)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), term)

	_, err = l.Append(&raft.Entry{Term: 5, Type: raft.EntryNoOp})
	require.NoError(t, err)

	term, ok = l.TermAt(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), term)

	_, ok = l.TermAt(2)
	assert.False(t, ok)
}
