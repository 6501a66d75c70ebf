package cluster

import (
	"sort"

	"github.com/obreshkov/raftcore/internal/raft"
)

// QuorumMatchIndex returns the highest index N such that at least quorum of
// the given matchIndexes are >= N — the core of the leader's commit rule
// (spec §4.D): "highest N such that N <= matchIndex on a majority of ACTIVE
// members". The caller is responsible for intersecting with the
// current-term check before advancing commitIndex.
func QuorumMatchIndex(matches map[raft.ServerID]uint64, quorum int) uint64 {
	if len(matches) == 0 || quorum <= 0 {
		return 0
	}
	values := make([]uint64, 0, len(matches))
	for _, v := range matches {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] > values[j] })
	if quorum > len(values) {
		return 0
	}
	return values[quorum-1]
}

// GlobalMatchIndex returns the minimum of every active member's matchIndex
// — the global (major compaction) index, replicated to every active member,
// not just a quorum of them.
func GlobalMatchIndex(matches map[raft.ServerID]uint64) uint64 {
	if len(matches) == 0 {
		return 0
	}
	min := uint64(1<<64 - 1)
	for _, v := range matches {
		if v < min {
			min = v
		}
	}
	return min
}
