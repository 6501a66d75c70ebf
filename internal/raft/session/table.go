package session

import "sync"

// Table owns every session known to this server, keyed by id. It is the
// server-side counterpart of Copycat's SessionManager.
type Table struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
}

// NewTable returns an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[uint64]*Session)}
}

// Register creates and stores a new open session. id is normally the index
// of the Register entry that produced it.
func (t *Table) Register(id uint64, connectionID string, timestamp int64) *Session {
	s := New(id, connectionID, timestamp)
	t.mu.Lock()
	t.sessions[id] = s
	t.mu.Unlock()
	return s
}

// Get returns the session with id, if one is known.
func (t *Table) Get(id uint64) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Remove drops a session from the table entirely (after it has been closed
// or expired and the state machine's hook has run).
func (t *Table) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// All returns every session currently tracked, in no particular order.
func (t *Table) All() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// SessionOpen reports whether session is known and still open.
func (t *Table) SessionOpen(session uint64) bool {
	s, ok := t.Get(session)
	return ok && s.IsOpen()
}

// SessionIndex returns the last log index that touched session and whether
// the session is still known at all (open, closed, or expired — anything
// short of having been Remove'd). It satisfies log.SessionChecker, letting
// compaction apply the Register/KeepAlive "latest entry per session" rule.
func (t *Table) SessionIndex(session uint64) (uint64, bool) {
	s, ok := t.Get(session)
	if !ok {
		return 0, false
	}
	return s.Index(), true
}

// ExpireBefore returns every open session whose last keep-alive is older
// than deadline, without changing their status. The server's session reaper
// passes a deadline computed from its own wall clock and proposes an Expire
// entry for each result; Session.Expire runs only when that entry commits,
// so every server agrees on which sessions timed out.
func (t *Table) ExpireBefore(deadline int64) []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var expired []*Session
	for _, s := range t.sessions {
		if s.IsOpen() && s.Timestamp() < deadline {
			expired = append(expired, s)
		}
	}
	return expired
}
