package cluster

import (
	"testing"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id, host string, port int, typ raft.MemberType) raft.Member {
	return raft.Member{ID: raft.ServerID(id), Host: host, Port: port, Type: typ, Status: raft.MemberAlive}
}

func TestNewSeedsLocalAsActive(t *testing.T) {
	local := member("s1", "127.0.0.1", 9001, raft.MemberActive)
	s := New(local)

	assert.True(t, s.IsActive("s1"))
	assert.Equal(t, 1, s.ActiveCount())
	assert.Equal(t, 1, s.Quorum())
}

func TestConfigureReplacesSets(t *testing.T) {
	s := New(member("s1", "h1", 1, raft.MemberActive))

	active := []raft.Member{
		member("s1", "h1", 1, raft.MemberActive),
		member("s2", "h2", 2, raft.MemberActive),
		member("s3", "h3", 3, raft.MemberActive),
	}
	passive := []raft.Member{member("s4", "h4", 4, raft.MemberPassive)}

	s.Configure(5, active, passive)

	assert.Equal(t, uint64(5), s.Version())
	assert.Equal(t, 3, s.ActiveCount())
	assert.Equal(t, 2, s.Quorum())
	assert.True(t, s.IsActive("s2"))
	assert.True(t, s.IsPassive("s4"))
	assert.False(t, s.IsActive("s4"))
}

func TestConfigureSeparatesClientMembers(t *testing.T) {
	s := New(member("s1", "h1", 1, raft.MemberActive))
	active := []raft.Member{
		member("s1", "h1", 1, raft.MemberActive),
		member("c1", "hc", 9, raft.MemberClient),
	}
	s.Configure(1, active, nil)

	assert.False(t, s.IsActive("c1"))
	require.Len(t, s.ClientMembers(), 1)
	assert.Equal(t, raft.ServerID("c1"), s.ClientMembers()[0].ID)
}

func TestConfigureDropsProgressForRemovedPeers(t *testing.T) {
	s := New(member("s1", "h1", 1, raft.MemberActive))
	s.Configure(1, []raft.Member{
		member("s1", "h1", 1, raft.MemberActive),
		member("s2", "h2", 2, raft.MemberActive),
	}, nil)
	s.InitProgress("s2", 10)

	s.Configure(2, []raft.Member{member("s1", "h1", 1, raft.MemberActive)}, nil)

	_, ok := s.Progress("s2")
	assert.False(t, ok)
}

func TestProgressRoundTrip(t *testing.T) {
	s := New(member("s1", "h1", 1, raft.MemberActive))
	s.InitProgress("s2", 10)

	p, ok := s.Progress("s2")
	require.True(t, ok)
	assert.Equal(t, uint64(11), p.NextIndex)
	assert.Equal(t, uint64(0), p.MatchIndex)

	s.SetProgress("s2", Progress{NextIndex: 12, MatchIndex: 11})
	p, ok = s.Progress("s2")
	require.True(t, ok)
	assert.Equal(t, uint64(11), p.MatchIndex)
}

func TestAddressFormatting(t *testing.T) {
	m := member("s1", "10.0.0.1", 9090, raft.MemberActive)
	assert.Equal(t, raft.ServerAddress("10.0.0.1:9090"), m.Address())
}
