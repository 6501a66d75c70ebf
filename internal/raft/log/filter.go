package log

import "github.com/obreshkov/raftcore/internal/raft"

// SessionChecker lets compaction ask the session table whether the
// Register/KeepAlive entry that produced a session's current state is still
// the latest (and therefore load-bearing) one.
type SessionChecker interface {
	// SessionIndex returns the last log index that touched session and
	// whether the session is still known at all — open, closed, or
	// expired, anything short of having been fully removed.
	SessionIndex(session uint64) (index uint64, exists bool)
}

// CommandFilter is supplied by the state machine: it decides whether a
// committed Command entry's effect is still observable in the current state
// (a later write superseded it, e.g. a tombstone), in which case the entry
// itself can be discarded without changing replay semantics.
type CommandFilter func(entry *raft.Entry) bool

// EntryFilter implements the built-in per-type keep rules: Register entries
// survive as long as their session still exists; KeepAlive entries survive
// only as the latest one for their session; Configuration entries survive
// at or after the current version or lastApplied; NoOp is kept at minor
// compaction and always dropped at major; Command defers to the state
// machine.
type EntryFilter struct {
	Sessions SessionChecker
	Commands CommandFilter

	// currentVersion is the index of the most recently committed
	// Configuration entry (the cluster's current version).
	currentVersion uint64
	lastApplied    uint64
}

// NewEntryFilter builds the built-in filter.
func NewEntryFilter(sessions SessionChecker, commands CommandFilter) *EntryFilter {
	return &EntryFilter{Sessions: sessions, Commands: commands}
}

// NoteConfiguration records the index of a newly committed Configuration
// entry as the cluster's current version.
func (f *EntryFilter) NoteConfiguration(index uint64) {
	if index > f.currentVersion {
		f.currentVersion = index
	}
}

// NoteLastApplied records the log's current lastApplied watermark, used by
// the Configuration keep rule.
func (f *EntryFilter) NoteLastApplied(index uint64) {
	if index > f.lastApplied {
		f.lastApplied = index
	}
}

// ShouldDiscard reports whether entry may be removed by the compaction pass
// currently running. Register/KeepAlive discarding and NoOp's major-only
// rule only take effect in a major pass (kind == Major), which only visits
// entries at or below the global index; Configuration and Command rules
// apply at either pass.
func (f *EntryFilter) ShouldDiscard(entry *raft.Entry, kind Kind) bool {
	switch entry.Type {
	case raft.EntryNoOp:
		// "never (major); always (minor)" in the keep-if table: minor
		// never discards a NoOp, major always does.
		return kind == Major

	case raft.EntryQuery:
		// Not part of the built-in keep table; a Query entry carries no
		// mutating state once its linearizable read has happened, so it
		// is treated like NoOp and only dropped at major compaction.
		return kind == Major

	case raft.EntryConfiguration:
		// Keep if index >= current version OR index >= lastApplied.
		if entry.Index >= f.currentVersion || entry.Index >= f.lastApplied {
			return false
		}
		return true

	case raft.EntryRegister:
		if kind != Major || f.Sessions == nil {
			return false
		}
		// A Register entry's own index is the session id it created.
		_, exists := f.Sessions.SessionIndex(entry.Index)
		return !exists

	case raft.EntryKeepAlive:
		if kind != Major || f.Sessions == nil {
			return false
		}
		latest, exists := f.Sessions.SessionIndex(entry.Session)
		if !exists {
			return true
		}
		return latest != entry.Index

	case raft.EntryCommand:
		if f.Commands == nil {
			return false
		}
		return f.Commands(entry)

	default:
		return false
	}
}

// Kind distinguishes the two compaction passes; see compaction.go.
type Kind int

const (
	// Minor compaction discards individual committed entries in place,
	// leaving holes, and only runs up to the commit index.
	Minor Kind = iota
	// Major compaction rewrites whole sealed segments without the
	// discarded entries, and may run up to the global index (the highest
	// index every active member has replicated).
	Major
)

func (k Kind) String() string {
	if k == Major {
		return "major"
	}
	return "minor"
}
