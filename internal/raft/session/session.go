// Package session implements the state-machine-visible half of the commit
// layer: per-client Session objects providing at-most-once command
// application and sequenced event delivery with resend.
package session

import "sync"

// Status is a session's lifecycle state.
type Status uint8

const (
	// StatusOpen sessions accept commands, queries and keep-alives.
	StatusOpen Status = iota
	// StatusClosed sessions were closed cleanly by the client (Leave-style)
	// or superseded; their state is retained only until compaction.
	StatusClosed
	// StatusExpired sessions missed their keep-alive deadline. The state
	// machine's Expire hook has been (or will be) invoked.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Event is one buffered, sequenced notification pushed to a session's
// client. Sequence numbers are per-session and start at 1.
type Event struct {
	Sequence uint64
	Payload  []byte
}

// Session tracks one client's command/query/event state, mirroring the
// commit layer's at-most-once and ordered-delivery guarantees. All access
// is serialized by the state-machine loop, but methods still lock: sessions
// are also read from the consensus loop when the two-tier compaction filter
// asks whether a session is still open.
type Session struct {
	mu sync.Mutex

	id           uint64
	connectionID string
	timestamp    int64
	status       Status

	// index is the last log index that touched this session (Register,
	// KeepAlive, Command or Query). Compaction's KeepAlive filter keeps
	// only the entry whose index matches this value — the latest one.
	index uint64

	// commandSequence is the highest command sequence number applied so
	// far (Copycat's "command version"). commandLowWater is the highest
	// sequence whose response has been acknowledged and can be evicted.
	commandSequence uint64
	commandLowWater uint64
	responses       map[uint64]any
	pendingQueries  map[uint64][]func()

	// eventSequence is the last assigned event sequence. eventLowWater is
	// the highest sequence the client has acknowledged; events above it
	// are kept buffered for resend.
	eventSequence uint64
	eventLowWater uint64
	events        map[uint64][]byte
}

// New creates an open session for connectionID, registered at the log index
// that becomes its id (per spec §4.B, a session's id is its Register
// entry's index).
func New(id uint64, connectionID string, timestamp int64) *Session {
	return &Session{
		id:             id,
		connectionID:   connectionID,
		timestamp:      timestamp,
		status:         StatusOpen,
		index:          id,
		responses:      make(map[uint64]any),
		pendingQueries: make(map[uint64][]func()),
		events:         make(map[uint64][]byte),
	}
}

func (s *Session) ID() uint64 { return s.id }

// Index returns the last log index that touched this session.
func (s *Session) Index() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// SetIndex records that entry index touched this session (a KeepAlive,
// Command or Query was applied against it).
func (s *Session) SetIndex(index uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index > s.index {
		s.index = index
	}
}

func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID
}

// Timestamp returns the server-clock time of the session's last successful
// keep-alive (or its registration, before the first one).
func (s *Session) Timestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timestamp
}

// Touch records a keep-alive at the given server time.
func (s *Session) Touch(timestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timestamp > s.timestamp {
		s.timestamp = timestamp
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) IsOpen() bool { return s.Status() == StatusOpen }

// Close marks the session closed and returns the pending queries that were
// still waiting on a command sequence — callers should run them so blocked
// linearizable reads don't hang forever.
func (s *Session) Close() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusOpen {
		s.status = StatusClosed
	}
	return s.drainQueriesLocked()
}

// Expire marks the session expired (a distinct terminal state from Close,
// since the state machine's Expire hook fires instead of Close).
func (s *Session) Expire() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusExpired
	return s.drainQueriesLocked()
}

func (s *Session) drainQueriesLocked() []func() {
	var all []func()
	for _, fns := range s.pendingQueries {
		all = append(all, fns...)
	}
	s.pendingQueries = make(map[uint64][]func())
	return all
}

// NextCommandSequence advances the command sequence to seq, running any
// queries that were registered to wait for it (Copycat's setVersion): a
// query submitted between two commands runs once the earlier of the two has
// applied, without requiring its own log entry.
func (s *Session) NextCommandSequence(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.commandSequence {
		return
	}
	for i := s.commandSequence + 1; i <= seq; i++ {
		for _, fn := range s.pendingQueries[i] {
			fn()
		}
		delete(s.pendingQueries, i)
	}
	s.commandSequence = seq
}

// CommandSequence returns the highest applied command sequence.
func (s *Session) CommandSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandSequence
}

// AwaitCommandSequence runs fn immediately if seq has already applied,
// otherwise defers it until NextCommandSequence reaches seq.
func (s *Session) AwaitCommandSequence(seq uint64, fn func()) {
	s.mu.Lock()
	if seq <= s.commandSequence {
		s.mu.Unlock()
		fn()
		return
	}
	s.pendingQueries[seq] = append(s.pendingQueries[seq], fn)
	s.mu.Unlock()
}

// RegisterResponse caches a command's result for at-most-once resend when
// the client retries the same sequence after a lost acknowledgment.
func (s *Session) RegisterResponse(seq uint64, response any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[seq] = response
}

// Response returns a previously cached response for seq, if any.
func (s *Session) Response(seq uint64) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[seq]
	return r, ok
}

// ClearCommandsBelow evicts cached responses up to and including
// lowWaterMark, once a KeepAlive confirms the client has seen them.
func (s *Session) ClearCommandsBelow(lowWaterMark uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lowWaterMark <= s.commandLowWater {
		return
	}
	for i := s.commandLowWater + 1; i <= lowWaterMark; i++ {
		delete(s.responses, i)
	}
	s.commandLowWater = lowWaterMark
}

// Publish buffers event and returns it with the sequence assigned to it.
// The caller (the server context) is responsible for actually delivering it
// over the transport; buffering here is what makes Resend possible.
func (s *Session) Publish(payload []byte) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventSequence++
	s.events[s.eventSequence] = payload
	return Event{Sequence: s.eventSequence, Payload: payload}
}

// ClearEventsBelow evicts buffered events the client has acknowledged.
func (s *Session) ClearEventsBelow(ack uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ack <= s.eventLowWater {
		return
	}
	for i := s.eventLowWater + 1; i <= ack; i++ {
		delete(s.events, i)
	}
	s.eventLowWater = ack
}

// Resend returns every buffered event with sequence > after, in ascending
// order, so the caller can push them back onto the connection (Copycat's
// ServerSession.resendEvents, triggered by a KeepAlive reporting a gap).
func (s *Session) Resend(after uint64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for i := after + 1; i <= s.eventSequence; i++ {
		if payload, ok := s.events[i]; ok {
			out = append(out, Event{Sequence: i, Payload: payload})
		}
	}
	return out
}
