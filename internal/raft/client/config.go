// Package client implements the client core (spec §4.F): session
// open/keep-alive, command/query submission with sequence-stamped
// at-most-once retry, and round-robin leader discovery over
// transport.Peer. Grounded on the teacher's connection-retry idiom in
// internal/raft/server/transport.go (backoff, redial-on-failure), adapted
// here to a client dialing servers instead of a server dialing peers.
package client

import (
	"time"

	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/metrics"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

// Default timing values, mirroring the server package's own defaults
// (server/config.go) so a client started against its default-configured
// server keeps its keep-alive comfortably inside the session timeout.
const (
	DefaultSessionTimeout = 5 * time.Second
	DefaultRequestTimeout = 2 * time.Second
	DefaultRetryBackoff   = 50 * time.Millisecond
	DefaultMaxRetryRounds = 5
)

// EventHandler is invoked, in event-sequence order, for every event a
// session receives via KeepAliveResponse.Events (including resends after a
// missed delivery).
type EventHandler func(sequence uint64, payload []byte)

// Config is everything New needs to build a Client.
type Config struct {
	// Seeds is the set of server addresses the client dials to find a
	// leader; at least one must be reachable at Open time.
	Seeds []string

	Transport transport.Transport
	Logger    logging.Logger
	Metrics   *metrics.Metrics

	SessionTimeout time.Duration
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
	MaxRetryRounds int

	OnEvent EventHandler
}

func (c *Config) setDefaults() {
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxRetryRounds == 0 {
		c.MaxRetryRounds = DefaultMaxRetryRounds
	}
	if c.Logger == nil {
		c.Logger = logging.Noop()
	}
	if c.Transport == nil {
		c.Transport = transport.NewGRPCTransport()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewMetrics()
	}
}
