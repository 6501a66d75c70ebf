package role

import (
	"context"
	"time"

	"github.com/obreshkov/raftcore/internal/raft/rpc"
)

const leaveRetryInterval = 500 * time.Millisecond

// Leave is the transient role a server occupies while gracefully removing
// itself from the cluster (spec §4.D Leave): it asks the current leader to
// commit a Configuration entry dropping it, keeps replicating in the
// meantime so it doesn't fall behind and stall the quorum math while its
// request is pending, and reverts to Follower if the leader rejects the
// request outright (e.g. it is the only ACTIVE member left).
type Leave struct {
	core Core
	stop chan struct{}
	done chan struct{}
}

func NewLeave(core Core) *Leave {
	return &Leave{core: core}
}

func (l *Leave) Type() Type { return RoleLeave }

func (l *Leave) Open() {
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.attempt()
}

func (l *Leave) Close() {
	if l.stop != nil {
		close(l.stop)
	}
}

func (l *Leave) attempt() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-l.stop
		cancel()
	}()

	self := l.core.Self()

	for {
		leaderID := l.core.Leader()
		if leaderID != "" {
			peer, err := l.core.Dial(ctx, leaderID)
			if err == nil {
				resp, err := peer.Leave(ctx, &rpc.MembershipRequest{Member: self})
				if err == nil {
					switch resp.Status {
					case rpc.StatusOK:
						l.core.Submit(func() { l.departed(resp) })
						return
					case rpc.StatusError:
						l.core.Submit(func() { l.core.Transition(NewFollower(l.core)) })
						return
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(leaveRetryInterval):
		}
	}
}

// departed applies the cluster view the leader confirmed the removal
// under. The server process itself is torn down by whatever owns the
// lifecycle above the role layer once it observes this role settle here;
// Leave has no further RPC work to do.
func (l *Leave) departed(resp *rpc.MembershipResponse) {
	l.core.Cluster().Configure(resp.Version, resp.Active, resp.Passive)
	close(l.done)
}

func (l *Leave) Vote(_ context.Context, req *rpc.VoteRequest) (*rpc.VoteResponse, error) {
	return &rpc.VoteResponse{Term: l.core.CurrentTerm(), VoteGranted: false}, nil
}

func (l *Leave) Poll(_ context.Context, req *rpc.PollRequest) (*rpc.PollResponse, error) {
	return &rpc.PollResponse{Term: l.core.CurrentTerm(), Accepted: false}, nil
}

func (l *Leave) Append(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return appendEntries(l.core, req), nil
}

func (l *Leave) Sync(_ context.Context, req *rpc.AppendRequest) (*rpc.AppendResponse, error) {
	return appendEntries(l.core, req), nil
}

func (l *Leave) Register(context.Context, *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	return notLeaderRegister(l.core), nil
}

func (l *Leave) KeepAlive(context.Context, *rpc.KeepAliveRequest) (*rpc.KeepAliveResponse, error) {
	return notLeaderKeepAlive(l.core), nil
}

func (l *Leave) Join(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(l.core), nil
}

func (l *Leave) Leave(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(l.core), nil
}

func (l *Leave) Promote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(l.core), nil
}

func (l *Leave) Demote(context.Context, *rpc.MembershipRequest) (*rpc.MembershipResponse, error) {
	return notLeaderMembership(l.core), nil
}

func (l *Leave) Command(context.Context, *rpc.CommandRequest) (*rpc.CommandResponse, error) {
	return notLeaderCommand(l.core), nil
}

func (l *Leave) Query(context.Context, *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return notLeaderQuery(l.core), nil
}
