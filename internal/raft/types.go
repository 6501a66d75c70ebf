// Package raft holds the types shared by every layer of the consensus
// core: the log entry variants, member/cluster identifiers, and the small
// set of ids used to key sessions and servers.
package raft

import "fmt"

// ServerID identifies a server in the cluster.
type ServerID string

// ServerAddress is the network address of a server.
type ServerAddress string

// EntryType tags the variant carried by an Entry. The wire space 256-415 is
// reserved for built-in variants; values outside that range are available
// to a resource layer built on top of this core.
type EntryType uint16

const (
	// EntryNoOp is appended by a newly elected leader to commit prior
	// entries safely.
	EntryNoOp EntryType = 256
	// EntryRegister creates a session; the entry's index is the session id.
	EntryRegister EntryType = 257
	// EntryKeepAlive renews a session and acknowledges a command sequence.
	EntryKeepAlive EntryType = 258
	// EntryCommand is a mutating operation.
	EntryCommand EntryType = 259
	// EntryQuery is a read operation recorded for linearizable reads.
	EntryQuery EntryType = 260
	// EntryConfiguration is a cluster reconfiguration.
	EntryConfiguration EntryType = 261
	// EntryExpire closes a session that missed its keep-alive deadline,
	// replicated so every server agrees on which sessions timed out
	// instead of each one deciding independently.
	EntryExpire EntryType = 262
)

func (t EntryType) String() string {
	switch t {
	case EntryNoOp:
		return "NoOp"
	case EntryRegister:
		return "Register"
	case EntryKeepAlive:
		return "KeepAlive"
	case EntryCommand:
		return "Command"
	case EntryQuery:
		return "Query"
	case EntryConfiguration:
		return "Configuration"
	case EntryExpire:
		return "Expire"
	default:
		return fmt.Sprintf("EntryType(%d)", uint16(t))
	}
}

// Entry is the base record replicated through the log. Only the fields
// relevant to Type are populated; this mirrors a tagged union without
// requiring Go interfaces or type assertions on the hot append/apply path.
type Entry struct {
	Index uint64
	Term  uint64
	Type  EntryType

	// Register
	ConnectionID string
	Timestamp    int64

	// KeepAlive / Command / Query
	Session  uint64
	Sequence uint64
	EventAck uint64 // KeepAlive: highest event sequence the client has observed
	Payload  []byte

	// Configuration
	Active  []Member
	Passive []Member
}

// MemberType classifies a cluster member's role in replication and quorum.
type MemberType uint8

const (
	// MemberActive members vote and count toward quorum.
	MemberActive MemberType = iota
	// MemberPassive members replicate but never vote or count toward quorum.
	MemberPassive
	// MemberClient members are advertised to clients but never replicated to.
	MemberClient
)

func (t MemberType) String() string {
	switch t {
	case MemberActive:
		return "ACTIVE"
	case MemberPassive:
		return "PASSIVE"
	case MemberClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// MemberStatus tracks liveness as observed by the local server.
type MemberStatus uint8

const (
	MemberAlive MemberStatus = iota
	MemberDead
)

func (s MemberStatus) String() string {
	if s == MemberAlive {
		return "ALIVE"
	}
	return "DEAD"
}

// Member describes one server in the cluster's membership view.
type Member struct {
	ID     ServerID
	Host   string
	Port   int
	Type   MemberType
	Status MemberStatus
}

// Address formats the member's host:port.
func (m Member) Address() ServerAddress {
	return ServerAddress(fmt.Sprintf("%s:%d", m.Host, m.Port))
}
