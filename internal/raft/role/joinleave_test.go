package role

import (
	"testing"
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinTransitionsToFollowerOnceAdmittedActive(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.peers["node-2"] = &fakePeer{joinFn: func(req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
		return &rpc.MembershipResponse{
			Status:  rpc.StatusOK,
			Version: 1,
			Active:  []raft.Member{member("node-2"), req.Member},
		}, nil
	}}
	core.cl.Configure(0, []raft.Member{member("node-2")}, nil)

	core.Transition(NewJoin(core))

	require.Eventually(t, func() bool {
		return core.lastTransition() == RoleFollower
	}, time.Second, 5*time.Millisecond)
	assert.True(t, core.Cluster().IsActive("node-1"))
}

func TestJoinTransitionsToPassiveWhenAdmittedPassive(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.peers["node-2"] = &fakePeer{joinFn: func(req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
		passiveSelf := req.Member
		passiveSelf.Type = raft.MemberPassive
		return &rpc.MembershipResponse{
			Status:  rpc.StatusOK,
			Version: 1,
			Active:  []raft.Member{member("node-2")},
			Passive: []raft.Member{passiveSelf},
		}, nil
	}}
	core.cl.Configure(0, []raft.Member{member("node-2")}, nil)

	core.Transition(NewJoin(core))

	require.Eventually(t, func() bool {
		return core.lastTransition() == RolePassive
	}, time.Second, 5*time.Millisecond)
}

func TestLeaveRevertsToFollowerOnRejection(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.SetLeader("node-2")
	core.peers["node-2"] = &fakePeer{leaveFn: func(req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
		return &rpc.MembershipResponse{Status: rpc.StatusError}, nil
	}}

	core.Transition(NewLeave(core))

	require.Eventually(t, func() bool {
		return core.lastTransition() == RoleFollower
	}, time.Second, 5*time.Millisecond)
}

func TestLeaveAppliesConfigurationOnAcceptance(t *testing.T) {
	core := newFakeCore(t, member("node-1"))
	core.SetLeader("node-2")
	core.peers["node-2"] = &fakePeer{leaveFn: func(req *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
		return &rpc.MembershipResponse{Status: rpc.StatusOK, Version: 2, Active: []raft.Member{member("node-2")}}, nil
	}}

	leave := NewLeave(core)
	core.Transition(leave)

	require.Eventually(t, func() bool {
		return !core.Cluster().IsActive("node-1")
	}, time.Second, 5*time.Millisecond)
}
