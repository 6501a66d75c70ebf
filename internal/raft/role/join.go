package role

import (
	"context"
	"time"

	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

// joinRetryInterval is how long Join waits between attempts to reach a
// member of the cluster it is trying to enter.
const joinRetryInterval = 500 * time.Millisecond

// Join is the transient role a server occupies while it is being admitted
// to the cluster (spec §4.D Join): it knows only the seed peers it was
// started with, repeatedly asks one of them to add it via the Join RPC,
// and on acceptance adopts whatever membership view the response carries
// before transitioning into Follower (admitted ACTIVE) or Passive
// (admitted PASSIVE).
//
// Grounded on the teacher's config.go handshake (a new node announcing
// itself to request C_old,new); this version carries a single
// Configuration entry instead of a joint-consensus pair, per the spec's
// redesign of that mechanism.
type Join struct {
	core Core
	stop chan struct{}
}

func NewJoin(core Core) *Join {
	return &Join{core: core}
}

func (j *Join) Type() Type { return RoleJoin }

func (j *Join) Open() {
	j.stop = make(chan struct{})
	go j.attempt()
}

func (j *Join) Close() {
	if j.stop != nil {
		close(j.stop)
	}
}

func (j *Join) attempt() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-j.stop
		cancel()
	}()

	seeds := append(j.core.Cluster().ActiveMembers(), j.core.Cluster().PassiveMembers()...)
	self := j.core.Self()

	for {
		for _, seed := range seeds {
			if seed.ID == self.ID {
				continue
			}
			peer, err := j.core.Dial(ctx, seed.ID)
			if err != nil {
				continue
			}
			resp, err := peer.Join(ctx, &rpc.MembershipRequest{Member: self})
			if err != nil {
				continue
			}
			if resp.Status == rpc.StatusOK {
				j.core.Submit(func() { j.admitted(resp) })
				return
			}
			if resp.Status == rpc.StatusNotLeader {
				// Response still carries the correct membership view; try
				// again against it next round instead of a stale seed.
				seeds = append(resp.Active, resp.Passive...)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(joinRetryInterval):
		}
	}
}

func (j *Join) admitted(resp *rpc.MembershipResponse) {
	j.core.Cluster().Configure(resp.Version, resp.Active, resp.Passive)
	if j.core.Cluster().IsActive(j.core.Self().ID) {
		j.core.Transition(NewFollower(j.core))
		return
	}
	j.core.Transition(NewPassive(j.core))
}

func (j *Join) Vote(_ context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	return &rpc.VoteResponse{Term: j.core.CurrentTerm(), VoteGranted: false}, nil
}

func (j *Join) Poll(_ context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	return &rpc.PollResponse{Term: j.core.CurrentTerm(), Accepted: false}, nil
}

func (j *Join) Append(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return appendEntries(j.core, req), nil
}

func (j *Join) Sync(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return appendEntries(j.core, req), nil
}

func (j *Join) Register(context.Context, *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return notLeaderRegister(j.core), nil
}

func (j *Join) KeepAlive(context.Context, *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return notLeaderKeepAlive(j.core), nil
}

func (j *Join) Join(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(j.core), nil
}

func (j *Join) Leave(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(j.core), nil
}

func (j *Join) Promote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(j.core), nil
}

func (j *Join) Demote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(j.core), nil
}

func (j *Join) Command(context.Context, *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	return notLeaderCommand(j.core), nil
}

func (j *Join) Query(context.Context, *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return notLeaderQuery(j.core), nil
}
