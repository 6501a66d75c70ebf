package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/raerrors"
)

// DefaultSegmentSize is the number of entries a segment holds before the log
// rolls to a new one.
const DefaultSegmentSize = 1024

// Log is the append-only, segmented replicated log described in spec §4.A.
// It is exclusively owned by the consensus context; all methods assume the
// caller has already serialized access (the consensus loop is single
// threaded), except where noted.
type Log struct {
	mu sync.RWMutex

	dir         string
	segmentSize uint32
	log         logging.Logger

	segments []*segment // ordered by firstIndex; last is the active segment
	first    uint64     // firstIndex across all segments (0 if empty)
	last     uint64     // lastIndex across all segments (0 if empty)

	lastApplied uint64
}

// Open opens (or creates) a log rooted at dir, rebuilding every segment's
// offset index by scanning it per §6.
func Open(dir string, segmentSize uint32, log logging.Logger) (*Log, error) {
	if segmentSize == 0 {
		segmentSize = DefaultSegmentSize
	}
	if log == nil {
		log = logging.Noop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("log: create dir %s: %w", dir, err)
	}

	l := &Log{dir: dir, segmentSize: segmentSize, log: log}
	if err := l.loadSegments(); err != nil {
		return nil, err
	}
	if len(l.segments) == 0 {
		seg, err := createSegment(dir, 1, segmentSize)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
		l.first, l.last = 1, 0
	} else {
		l.first = l.segments[0].firstIndex()
		l.last = l.segments[len(l.segments)-1].lastIndex()
	}
	return l, nil
}

func (l *Log) loadSegments() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("log: read dir %s: %w", l.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".log" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		seg, err := openSegment(filepath.Join(l.dir, name))
		if err != nil {
			return err
		}
		l.segments = append(l.segments, seg)
	}
	return nil
}

func (l *Log) activeSegment() *segment {
	return l.segments[len(l.segments)-1]
}

// Append assigns the next index and writes entry into the active segment,
// rolling to a new segment when the active one is full. It returns the
// assigned index.
func (l *Log) Append(entry *raft.Entry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	active := l.activeSegment()
	if active.full() {
		next, err := createSegment(l.dir, active.lastIndex()+1, l.segmentSize)
		if err != nil {
			return 0, err
		}
		l.segments = append(l.segments, next)
		active = next
	}

	index := active.lastIndex() + 1
	if l.last != 0 && index != l.last+1 {
		return 0, &raerrors.IllegalStateError{Reason: fmt.Sprintf("append index %d is not contiguous with last %d", index, l.last)}
	}

	entry.Index = index
	body, err := encodeBody(entry)
	if err != nil {
		return 0, err
	}
	onDisk := &raft.Entry{Index: index, Term: entry.Term, Type: entry.Type, Payload: body}
	if err := active.append(onDisk); err != nil {
		return 0, err
	}

	if l.first == 0 {
		l.first = index
	}
	l.last = index
	return index, nil
}

// Get returns the entry at index, or (nil, false) if it was compacted out or
// is out of range.
func (l *Log) Get(index uint64) (*raft.Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.get(index)
}

func (l *Log) get(index uint64) (*raft.Entry, bool) {
	seg := l.segmentFor(index)
	if seg == nil {
		return nil, false
	}
	loc, ok := seg.locationFor(index)
	if !ok || loc.discarded {
		return nil, false
	}
	term, typ, raw, err := seg.readAt(loc)
	if err != nil {
		return nil, false
	}
	entry, err := decodeBody(raw, index, term, typ)
	if err != nil {
		return nil, false
	}
	return entry, true
}

func (l *Log) segmentFor(index uint64) *segment {
	// Segments are ordered by firstIndex; binary search would be cleaner
	// but the segment count is small relative to entries per segment.
	for i := len(l.segments) - 1; i >= 0; i-- {
		s := l.segments[i]
		if index >= s.firstIndex() && index <= s.lastIndex() {
			return s
		}
	}
	return nil
}

func (s *segment) locationFor(index uint64) (entryLocation, bool) {
	// locations is ordered by index and dense (one slot per index, holes
	// marked discarded rather than removed), so offset-arithmetic works.
	if index < s.header.FirstIndex {
		return entryLocation{}, false
	}
	pos := int(index - s.header.FirstIndex)
	if pos < 0 || pos >= len(s.locations) {
		return entryLocation{}, false
	}
	return s.locations[pos], true
}

// Contains reports whether index names a live (non-discarded) slot within
// [FirstIndex, LastIndex].
func (l *Log) Contains(index uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seg := l.segmentFor(index)
	if seg == nil {
		return false
	}
	loc, ok := seg.locationFor(index)
	return ok && !loc.discarded
}

// FirstIndex returns the lowest index still tracked. Compaction leaves holes
// in place and never removes a segment, so it does not move this value.
func (l *Log) FirstIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.first
}

// LastIndex returns the highest appended index (0 if the log is empty).
func (l *Log) LastIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// LastApplied returns the highest index applied to the state machine so far.
func (l *Log) LastApplied() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastApplied
}

// SetLastApplied advances the applied watermark. It never moves backward:
// callers that violate commit monotonicity get an IllegalStateError.
func (l *Log) SetLastApplied(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < l.lastApplied {
		return &raerrors.IllegalStateError{Reason: fmt.Sprintf("lastApplied would decrease from %d to %d", l.lastApplied, index)}
	}
	l.lastApplied = index
	return nil
}

// TermAt returns the term of the entry at index, and whether it exists.
func (l *Log) TermAt(index uint64) (uint64, bool) {
	if index == 0 {
		return 0, true
	}
	e, ok := l.Get(index)
	if !ok {
		return 0, false
	}
	return e.Term, true
}

// Truncate discards all entries with index > index. It fails if index is
// below lastApplied, since applied entries must never be rewritten.
func (l *Log) Truncate(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < l.lastApplied {
		return &raerrors.IllegalStateError{Reason: fmt.Sprintf("cannot truncate to %d below lastApplied %d", index, l.lastApplied)}
	}
	if index >= l.last {
		return nil
	}

	kept := l.segments[:0]
	for _, seg := range l.segments {
		if seg.firstIndex() > index {
			if err := seg.removeFile(); err != nil {
				return fmt.Errorf("log: truncate remove segment: %w", err)
			}
			continue
		}
		if seg.lastIndex() > index {
			if err := seg.truncateAfter(index); err != nil {
				return err
			}
		}
		kept = append(kept, seg)
	}
	l.segments = kept
	if len(l.segments) == 0 {
		seg, err := createSegment(l.dir, index+1, l.segmentSize)
		if err != nil {
			return err
		}
		l.segments = []*segment{seg}
	}
	l.last = index
	if l.first > l.last {
		l.first = l.last
	}
	return nil
}

// Sync flushes the active segment to stable storage.
func (l *Log) Sync() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.activeSegment().sync()
}

// Close closes every open segment file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, seg := range l.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Delete removes the log directory entirely. Callers must ensure the log is
// closed first.
func Delete(dir string) error {
	return os.RemoveAll(dir)
}
