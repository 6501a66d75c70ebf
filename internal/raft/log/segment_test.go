package log

import (
	"testing"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSegment(t *testing.T) {
	dir := t.TempDir()

	seg, err := createSegment(dir, 1, 4)
	require.NoError(t, err)
	defer seg.close()

	assert.Equal(t, uint64(1), seg.firstIndex())
	assert.Equal(t, uint64(0), seg.lastIndex())
	assert.False(t, seg.full())
}

func TestSegmentAppendAndReadAt(t *testing.T) {
	dir := t.TempDir()
	seg, err := createSegment(dir, 1, 4)
	require.NoError(t, err)
	defer seg.close()

	err = seg.append(&raft.Entry{Index: 1, Term: 1, Type: raft.EntryCommand, Payload: []byte("a")})
	require.NoError(t, err)
	err = seg.append(&raft.Entry{Index: 2, Term: 1, Type: raft.EntryCommand, Payload: []byte("bb")})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), seg.lastIndex())
	assert.Equal(t, 2, seg.length())

	loc, ok := seg.locationFor(1)
	require.True(t, ok)
	term, typ, payload, err := seg.readAt(loc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), term)
	assert.Equal(t, raft.EntryCommand, typ)
	assert.Equal(t, []byte("a"), payload)

	loc2, ok := seg.locationFor(2)
	require.True(t, ok)
	_, _, payload2, err := seg.readAt(loc2)
	require.NoError(t, err)
	assert.Equal(t, []byte("bb"), payload2)
}

func TestSegmentFull(t *testing.T) {
	dir := t.TempDir()
	seg, err := createSegment(dir, 1, 2)
	require.NoError(t, err)
	defer seg.close()

	require.NoError(t, seg.append(&raft.Entry{Index: 1, Term: 1, Type: raft.EntryCommand}))
	assert.False(t, seg.full())
	require.NoError(t, seg.append(&raft.Entry{Index: 2, Term: 1, Type: raft.EntryCommand}))
	assert.True(t, seg.full())
}

func TestSegmentDiscard(t *testing.T) {
	dir := t.TempDir()
	seg, err := createSegment(dir, 1, 4)
	require.NoError(t, err)
	defer seg.close()

	require.NoError(t, seg.append(&raft.Entry{Index: 1, Term: 1, Type: raft.EntryCommand, Payload: []byte("x")}))
	require.NoError(t, seg.discard(1))

	loc, ok := seg.locationFor(1)
	require.True(t, ok)
	assert.True(t, loc.discarded)

	_, _, _, err = seg.readAt(loc)
	assert.ErrorIs(t, err, errCompactedOut)
}

func TestSegmentTruncateAfter(t *testing.T) {
	dir := t.TempDir()
	seg, err := createSegment(dir, 1, 8)
	require.NoError(t, err)
	defer seg.close()

	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, seg.append(&raft.Entry{Index: i, Term: 1, Type: raft.EntryCommand, Payload: []byte{byte(i)}}))
	}

	require.NoError(t, seg.truncateAfter(2))
	assert.Equal(t, uint64(2), seg.lastIndex())
	assert.Equal(t, 2, seg.length())
}

func TestOpenSegmentRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	seg, err := createSegment(dir, 1, 8)
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, seg.append(&raft.Entry{Index: i, Term: 2, Type: raft.EntryCommand, Payload: []byte{byte(i), byte(i)}}))
	}
	require.NoError(t, seg.discard(2))
	require.NoError(t, seg.sync())
	require.NoError(t, seg.close())

	reopened, err := openSegment(seg.path)
	require.NoError(t, err)
	defer reopened.close()

	assert.Equal(t, uint64(1), reopened.firstIndex())
	assert.Equal(t, uint64(3), reopened.lastIndex())
	assert.Equal(t, 3, reopened.length())

	loc2, ok := reopened.locationFor(2)
	require.True(t, ok)
	assert.True(t, loc2.discarded)

	loc3, ok := reopened.locationFor(3)
	require.True(t, ok)
	_, _, payload, err := reopened.readAt(loc3)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 3}, payload)
}
