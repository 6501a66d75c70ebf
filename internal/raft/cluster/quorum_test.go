package cluster

import (
	"testing"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/stretchr/testify/assert"
)

func TestQuorumMatchIndexMajority(t *testing.T) {
	matches := map[raft.ServerID]uint64{
		"s1": 10,
		"s2": 10,
		"s3": 5,
	}
	assert.Equal(t, uint64(10), QuorumMatchIndex(matches, 2))
	assert.Equal(t, uint64(5), QuorumMatchIndex(matches, 3))
}

func TestQuorumMatchIndexEmpty(t *testing.T) {
	assert.Equal(t, uint64(0), QuorumMatchIndex(nil, 1))
	assert.Equal(t, uint64(0), QuorumMatchIndex(map[raft.ServerID]uint64{"s1": 5}, 0))
}

func TestQuorumMatchIndexQuorumExceedsMembers(t *testing.T) {
	matches := map[raft.ServerID]uint64{"s1": 10}
	assert.Equal(t, uint64(0), QuorumMatchIndex(matches, 2))
}

func TestQuorumMatchIndexTie(t *testing.T) {
	matches := map[raft.ServerID]uint64{
		"s1": 7,
		"s2": 7,
		"s3": 7,
		"s4": 7,
		"s5": 7,
	}
	assert.Equal(t, uint64(7), QuorumMatchIndex(matches, 3))
}

func TestGlobalMatchIndexIsMinimum(t *testing.T) {
	matches := map[raft.ServerID]uint64{
		"s1": 10,
		"s2": 3,
		"s3": 7,
	}
	assert.Equal(t, uint64(3), GlobalMatchIndex(matches))
}

func TestGlobalMatchIndexEmpty(t *testing.T) {
	assert.Equal(t, uint64(0), GlobalMatchIndex(nil))
}

func TestGlobalMatchIndexSingleMember(t *testing.T) {
	assert.Equal(t, uint64(42), GlobalMatchIndex(map[raft.ServerID]uint64{"s1": 42}))
}
