package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/metrics"
	"github.com/obreshkov/raftcore/internal/raft/raerrors"
	"github.com/obreshkov/raftcore/internal/raft/rpc"
	"github.com/obreshkov/raftcore/internal/raft/session"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// Client is the client core (spec §4.F): it holds one session against the
// cluster, a monotonic command sequence, and the round-robin member list
// used to rediscover a leader after a connection failure or a NotLeader
// response.
type Client struct {
	cfg       Config
	transport transport.Transport
	logger    logging.Logger
	metrics   *metrics.Metrics

	connectionID string

	mu           sync.Mutex
	members      []raft.Member
	leader       raft.ServerID
	probeIdx     int
	peers        map[raft.ServerID]transport.Peer
	session      uint64
	open         bool
	nextSequence uint64
	lastSequence uint64
	lastEventAck uint64

	closeOnce  sync.Once
	stopKeep   chan struct{}
	keepAliveWG sync.WaitGroup
}

// New builds a Client. Call Open before submitting any Command or Query.
func New(cfg Config) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:          cfg,
		transport:    cfg.Transport,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		connectionID: uuid.NewString(),
		peers:        make(map[raft.ServerID]transport.Peer),
	}
}

// Open registers a new session against the cluster, probing cfg.Seeds in
// round-robin order until one accepts, and starts the keep-alive loop that
// renews it at sessionTimeout/2.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return fmt.Errorf("client: already open")
	}
	c.mu.Unlock()

	seeds := make([]raft.Member, len(c.cfg.Seeds))
	for i, addr := range c.cfg.Seeds {
		seeds[i] = raft.Member{ID: raft.ServerID(addr), Host: addr}
	}

	var lastErr error
	for attempt := 0; attempt < len(seeds)*c.cfg.MaxRetryRounds; attempt++ {
		member := seeds[attempt%len(seeds)]
		peer, err := c.dialDirect(ctx, member)
		if err != nil {
			lastErr = err
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		resp, err := peer.Register(reqCtx, &rpc.RegisterRequest{
			ConnectionID: c.connectionID,
			Timeout:      int64(c.cfg.SessionTimeout),
		})
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Status != rpc.StatusOK {
			lastErr = &raerrors.NoLeaderError{Server: string(member.Host)}
			if resp.Leader != "" {
				c.mu.Lock()
				c.leader = resp.Leader
				c.members = mergeMember(c.members, member)
				c.mu.Unlock()
			}
			continue
		}

		c.mu.Lock()
		c.session = resp.Session
		c.leader = resp.Leader
		c.members = mergeMembers(append(resp.Members, member))
		c.open = true
		c.mu.Unlock()

		c.stopKeep = make(chan struct{})
		c.keepAliveWG.Add(1)
		go c.keepAliveLoop()
		return nil
	}
	if lastErr == nil {
		lastErr = raerrors.ErrNoLeader
	}
	return fmt.Errorf("client: open session: %w", lastErr)
}

// Close cancels the keep-alive loop and releases every dialed peer. Any
// command or query blocked on a request's own context is left to that
// context's cancellation; Close does not itself interrupt in-flight calls.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
		if c.stopKeep != nil {
			close(c.stopKeep)
		}
		c.keepAliveWG.Wait()

		c.mu.Lock()
		peers := c.peers
		c.peers = make(map[raft.ServerID]transport.Peer)
		c.mu.Unlock()
		for _, p := range peers {
			if err := p.Close(); err != nil {
				c.logger.Warnf("client: close peer: %v", err)
			}
		}
	})
	return nil
}

// Command submits a mutating operation, assigning the next sequence number
// and resending it with the *same* sequence on every retry so the server's
// session dedup returns the cached result for a replay instead of applying
// the operation twice.
func (c *Client) Command(ctx context.Context, operation []byte) ([]byte, error) {
	c.mu.Lock()
	c.nextSequence++
	seq := c.nextSequence
	session := c.session
	c.mu.Unlock()

	req := &rpc.CommandRequest{Session: session, Sequence: seq, Operation: operation}

	result, err := c.withRetry(ctx, func(ctx context.Context, peer transport.Peer) (status, []byte, error) {
		resp, err := peer.Command(ctx, req)
		if err != nil {
			return 0, nil, err
		}
		return resp.Status, resp.Result, nil
	})
	if err == nil {
		c.mu.Lock()
		c.lastSequence = seq
		c.mu.Unlock()
	}
	return result, err
}

// Query submits a read-only operation, stamped with the current (not
// incremented) sequence so it observes every command already acknowledged
// by this client, per spec §5's "observes its own writes" guarantee.
func (c *Client) Query(ctx context.Context, operation []byte, consistency rpc.Consistency) ([]byte, error) {
	c.mu.Lock()
	seq := c.lastSequence
	session := c.session
	c.mu.Unlock()

	req := &rpc.QueryRequest{Session: session, Sequence: seq, Operation: operation, Consistency: consistency}

	return c.withRetry(ctx, func(ctx context.Context, peer transport.Peer) (status, []byte, error) {
		resp, err := peer.Query(ctx, req)
		if err != nil {
			return 0, nil, err
		}
		return resp.Status, resp.Result, nil
	})
}

// status mirrors rpc.Status for withRetry's callback signature.
type status = rpc.Status

// withRetry sends a request to the current leader (or, absent one, the
// next member in round-robin order), retrying on a connection failure or a
// not-leader/error response until it succeeds, the context is cancelled,
// or MaxRetryRounds full passes over the known membership are exhausted.
func (c *Client) withRetry(ctx context.Context, send func(context.Context, transport.Peer) (status, []byte, error)) ([]byte, error) {
	var lastErr error
	c.mu.Lock()
	attempts := c.cfg.MaxRetryRounds * len(c.members)
	c.mu.Unlock()
	if attempts < c.cfg.MaxRetryRounds {
		attempts = c.cfg.MaxRetryRounds
	}
	for round := 0; round < attempts; round++ {
		peer, member, err := c.currentPeer(ctx)
		if err != nil {
			lastErr = err
			time.Sleep(c.cfg.RetryBackoff)
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		status, result, err := send(reqCtx, peer)
		cancel()

		if err != nil {
			c.logger.Debugf("client: request to %s failed: %v", member.ID, err)
			c.advanceProbe()
			lastErr = &raerrors.NoLeaderError{Server: string(member.Host)}
			continue
		}

		switch status {
		case rpc.StatusOK:
			return result, nil
		case rpc.StatusUnknownSession:
			return nil, &raerrors.SessionExpiredError{Session: c.session}
		case rpc.StatusSessionExpired:
			return nil, &raerrors.SessionExpiredError{Session: c.session}
		default:
			c.advanceProbe()
			lastErr = &raerrors.NoLeaderError{Server: string(member.Host)}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryBackoff):
		}
	}
	if lastErr == nil {
		lastErr = raerrors.ErrNoLeader
	}
	return nil, lastErr
}

// currentPeer returns a dialed Peer for the client's believed leader, or
// the next member in round-robin order if no leader is known.
func (c *Client) currentPeer(ctx context.Context) (transport.Peer, raft.Member, error) {
	c.mu.Lock()
	leader := c.leader
	members := c.members
	c.mu.Unlock()

	if leader != "" {
		if m, ok := memberByID(members, leader); ok {
			if p, err := c.dial(ctx, m); err == nil {
				return p, m, nil
			}
		}
	}

	c.mu.Lock()
	if len(c.members) == 0 {
		c.mu.Unlock()
		return nil, raft.Member{}, raerrors.ErrNoLeader
	}
	m := c.members[c.probeIdx%len(c.members)]
	c.probeIdx++
	c.mu.Unlock()

	p, err := c.dial(ctx, m)
	if err != nil {
		return nil, m, err
	}
	return p, m, nil
}

func (c *Client) advanceProbe() {
	c.mu.Lock()
	c.leader = ""
	c.probeIdx++
	c.mu.Unlock()
}

func (c *Client) dial(ctx context.Context, m raft.Member) (transport.Peer, error) {
	c.mu.Lock()
	if p, ok := c.peers[m.ID]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()
	return c.dialDirect(ctx, m)
}

func (c *Client) dialDirect(ctx context.Context, m raft.Member) (transport.Peer, error) {
	addr := string(m.Address())
	if m.Port == 0 {
		addr = m.Host
	}
	peer, err := c.transport.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	c.mu.Lock()
	c.peers[m.ID] = peer
	c.mu.Unlock()
	return peer, nil
}

// keepAliveLoop renews the session at sessionTimeout/2, reporting the
// client's observed command sequence and event sequence so the server can
// trim its dedup buffer and detect a missed event delivery. Any events
// returned are replayed through cfg.OnEvent in order, and acked locally so
// a subsequent tick or Publish call does not redeliver them.
func (c *Client) keepAliveLoop() {
	defer c.keepAliveWG.Done()
	interval := c.cfg.SessionTimeout / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopKeep:
			return
		case <-ticker.C:
			c.sendKeepAlive()
		}
	}
}

func (c *Client) sendKeepAlive() {
	c.mu.Lock()
	session := c.session
	commandSeq := c.lastSequence
	eventAck := c.lastEventAck
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	peer, member, err := c.currentPeer(ctx)
	if err != nil {
		c.logger.Warnf("client: keep-alive: %v", err)
		return
	}

	resp, err := peer.KeepAlive(ctx, &rpc.KeepAliveRequest{
		Session:         session,
		CommandSequence: commandSeq,
		EventSequence:   eventAck,
	})
	if err != nil {
		c.logger.Warnf("client: keep-alive to %s failed: %v", member.ID, err)
		c.advanceProbe()
		return
	}

	switch resp.Status {
	case rpc.StatusOK:
		c.mu.Lock()
		c.leader = resp.Leader
		if len(resp.Members) > 0 {
			c.members = mergeMembers(resp.Members)
		}
		c.mu.Unlock()
		c.deliverEvents(resp.Events)
	case rpc.StatusUnknownSession, rpc.StatusSessionExpired:
		c.logger.Warnf("client: session %d no longer valid: %s", session, resp.Status)
	default:
		c.advanceProbe()
	}
}

func (c *Client) deliverEvents(events []session.Event) {
	if len(events) == 0 {
		return
	}
	if len(events) > 1 {
		c.metrics.RecordEventResend(len(events) - 1)
	}
	for _, ev := range events {
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(ev.Sequence, ev.Payload)
		}
		c.mu.Lock()
		if ev.Sequence > c.lastEventAck {
			c.lastEventAck = ev.Sequence
		}
		c.mu.Unlock()
	}
}

func mergeMember(existing []raft.Member, m raft.Member) []raft.Member {
	for _, e := range existing {
		if e.ID == m.ID {
			return existing
		}
	}
	return append(existing, m)
}

func mergeMembers(members []raft.Member) []raft.Member {
	out := make([]raft.Member, 0, len(members))
	seen := make(map[raft.ServerID]bool, len(members))
	for _, m := range members {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

func memberByID(members []raft.Member, id raft.ServerID) (raft.Member, bool) {
	for _, m := range members {
		if m.ID == id {
			return m, true
		}
	}
	return raft.Member{}, false
}
