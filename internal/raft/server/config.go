// Package server assembles the concrete role.Core (spec §4.E "Server
// context"): the log, cluster view, session table, durable metadata,
// consensus loop, transport, state machine and compactor a running server
// needs, plus the rpc.Server delegation shim that routes every inbound RPC
// to whichever role is currently active.
//
// Grounded on the teacher's internal/raft/server.Server and
// internal/raft/server/config.go, which hold the same set of collaborators
// behind one struct; this version splits the role-dispatch behavior out
// into the role package (spec §9 design note) and keeps Server itself as
// the narrow Core implementation plus the background jobs (compaction,
// session reaping) the teacher ran inline in its own goroutines.
package server

import (
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/role"
	"github.com/obreshkov/raftcore/internal/raft/statemachine"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// Default timing values, grounded on the teacher's constants.go
// (ElectionTimeoutMin/Max, HeartbeatInterval) and spec §7's session
// lifecycle defaults.
const (
	DefaultElectionTimeoutMin   = 150 * time.Millisecond
	DefaultElectionTimeoutMax   = 300 * time.Millisecond
	DefaultHeartbeatInterval    = 50 * time.Millisecond
	DefaultSessionTimeout       = 5 * time.Second
	DefaultSessionSweepInterval = time.Second
	DefaultSegmentSize          = uint32(4096)
)

// Config is everything New needs to build a Server.
type Config struct {
	// ID, Host and Port identify this server to the rest of the cluster.
	ID   raft.ServerID
	Host string
	Port int

	// BindAddress is the local address Transport.Listen binds. Defaults to
	// Host:Port when empty.
	BindAddress string

	// DataDir holds the segmented log and the bbolt metadata store.
	DataDir     string
	SegmentSize uint32

	ElectionTimeoutMin   time.Duration
	ElectionTimeoutMax   time.Duration
	HeartbeatInterval    time.Duration
	SessionTimeout       time.Duration
	SessionSweepInterval time.Duration

	MinorCompactionInterval time.Duration
	MajorCompactionInterval time.Duration

	// Seeds is the set of already-running members a fresh node asks to be
	// admitted through, via role.Join. Ignored when Bootstrap is true.
	Seeds []raft.Member
	// Bootstrap starts this server as the sole ACTIVE member of a brand
	// new cluster instead of attempting to join an existing one.
	Bootstrap bool

	StateMachine statemachine.StateMachine
	Transport    transport.Transport
	Logger       logging.Logger
}

func (c *Config) setDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = string(raft.Member{Host: c.Host, Port: c.Port}.Address())
	}
	if c.SegmentSize == 0 {
		c.SegmentSize = DefaultSegmentSize
	}
	if c.ElectionTimeoutMin == 0 {
		c.ElectionTimeoutMin = DefaultElectionTimeoutMin
	}
	if c.ElectionTimeoutMax == 0 {
		c.ElectionTimeoutMax = DefaultElectionTimeoutMax
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.SessionSweepInterval == 0 {
		c.SessionSweepInterval = DefaultSessionSweepInterval
	}
	if c.MinorCompactionInterval == 0 {
		c.MinorCompactionInterval = 0 // let log.NewCompactor apply its own default
	}
	if c.Logger == nil {
		c.Logger = logging.Noop()
	}
	if c.Transport == nil {
		c.Transport = transport.NewGRPCTransport()
	}
}

// roleConfig narrows Config to the slice role.Role implementations consult.
func (c Config) roleConfig() role.Config {
	return role.Config{
		ElectionTimeoutMin: c.ElectionTimeoutMin,
		ElectionTimeoutMax: c.ElectionTimeoutMax,
		HeartbeatInterval:  c.HeartbeatInterval,
		SessionTimeout:     c.SessionTimeout,
	}
}

func (c Config) self() raft.Member {
	return raft.Member{ID: c.ID, Host: c.Host, Port: c.Port, Type: raft.MemberActive, Status: raft.MemberAlive}
}
