// Package log implements the append-only, segmented replicated log and its
// two-tier compaction scheme.
package log

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/obreshkov/raftcore/internal/raft"
)

// segmentHeader is written once at the start of every segment file.
type segmentHeader struct {
	FirstIndex uint64
	MaxEntries uint32
	CreatedAt  int64
}

const headerSize = 8 + 4 + 8

// entryLocation records where an entry lives within its segment's file, so
// that get() does not need to rescan on every read.
type entryLocation struct {
	index  uint64
	offset int64
	length uint32
	term   uint64
	typ    raft.EntryType
	// discarded marks a hole left by compaction; the slot in the offset
	// index is kept so index arithmetic stays dense, but contains() reports
	// false and get() returns none for it.
	discarded bool
}

// segment is a single file of contiguous log entries plus its rebuilt
// offset index. A segment is either the "active" (currently appended-to)
// segment or a sealed one eligible for compaction.
type segment struct {
	path       string
	file       *os.File
	header     segmentHeader
	locations  []entryLocation // ordered by index
	nextOffset int64
}

// createSegment creates a brand-new, empty segment file starting at
// firstIndex.
func createSegment(dir string, firstIndex uint64, maxEntries uint32) (*segment, error) {
	path := segmentPath(dir, firstIndex)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("log: create segment %s: %w", path, err)
	}

	s := &segment{
		path: path,
		file: f,
		header: segmentHeader{
			FirstIndex: firstIndex,
			MaxEntries: maxEntries,
		},
	}
	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	s.nextOffset = headerSize
	return s, nil
}

// openSegment opens an existing segment file and rebuilds its offset index
// by scanning every length-prefixed record, per §6 ("an in-memory offset
// index is rebuilt on open by scan").
func openSegment(path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("log: open segment %s: %w", path, err)
	}

	s := &segment{path: path, file: f}
	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, err
	}

	if err := s.rebuildIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *segment) writeHeader() error {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint64(buf[0:8], s.header.FirstIndex)
	binary.BigEndian.PutUint32(buf[8:12], s.header.MaxEntries)
	binary.BigEndian.PutUint64(buf[12:20], uint64(s.header.CreatedAt))
	if _, err := s.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("log: write header %s: %w", s.path, err)
	}
	return nil
}

func (s *segment) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(s.file, buf); err != nil {
		return fmt.Errorf("log: read header %s: %w", s.path, err)
	}
	s.header.FirstIndex = binary.BigEndian.Uint64(buf[0:8])
	s.header.MaxEntries = binary.BigEndian.Uint32(buf[8:12])
	s.header.CreatedAt = int64(binary.BigEndian.Uint64(buf[12:20]))
	return nil
}

// discardedBit is set on the on-disk type field to mark a tombstoned entry.
// It sits well above the reserved built-in EntryType space (256-415), so it
// never collides with a real type.
const discardedBit uint16 = 0x8000

// rebuildIndex scans every record after the header, recording its location.
// The length field always reflects the bytes actually on disk for that
// record (minor compaction zeroes a tombstone's payload but keeps its frame
// the same size so later offsets stay valid; major compaction rewrites the
// whole segment and may shrink a tombstone's frame to just its header), so a
// single length-prefixed scan works uniformly for live and discarded slots.
func (s *segment) rebuildIndex() error {
	r := bufio.NewReader(s.file)
	offset := int64(headerSize)
	index := s.header.FirstIndex

	for {
		lengthBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lengthBuf); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("log: rebuild index %s: %w", s.path, err)
		}
		length := binary.BigEndian.Uint32(lengthBuf)

		rest := make([]byte, 8+2)
		if _, err := io.ReadFull(r, rest); err != nil {
			return fmt.Errorf("log: rebuild index %s: %w", s.path, err)
		}
		term := binary.BigEndian.Uint64(rest[0:8])
		rawType := binary.BigEndian.Uint16(rest[8:10])
		discarded := rawType&discardedBit != 0
		typ := raft.EntryType(rawType &^ discardedBit)

		payloadLen := int(length) - 8 - 2
		if payloadLen < 0 {
			return fmt.Errorf("%w: negative payload length in %s", raftLogCorruption, s.path)
		}
		if _, err := r.Discard(payloadLen); err != nil {
			return fmt.Errorf("log: rebuild index %s: %w", s.path, err)
		}

		s.locations = append(s.locations, entryLocation{
			index:     index,
			offset:    offset,
			length:    length,
			term:      term,
			typ:       typ,
			discarded: discarded,
		})
		offset += 4 + int64(length)
		index++
	}

	s.nextOffset = offset
	return nil
}

func (s *segment) firstIndex() uint64 {
	return s.header.FirstIndex
}

func (s *segment) lastIndex() uint64 {
	if len(s.locations) == 0 {
		return s.header.FirstIndex - 1
	}
	return s.locations[len(s.locations)-1].index
}

func (s *segment) length() int {
	return len(s.locations)
}

func (s *segment) full() bool {
	return uint32(len(s.locations)) >= s.header.MaxEntries
}

// append writes entry (whose Index must equal lastIndex()+1) to the end of
// the segment file.
func (s *segment) append(entry *raft.Entry) error {
	payload := entry.Payload
	body := make([]byte, 8+2+len(payload))
	binary.BigEndian.PutUint64(body[0:8], entry.Term)
	binary.BigEndian.PutUint16(body[8:10], uint16(entry.Type))
	copy(body[10:], payload)

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)

	n, err := s.file.WriteAt(frame, s.nextOffset)
	if err != nil {
		return fmt.Errorf("log: append to %s: %w", s.path, err)
	}

	// The wire-level Entry only carries Term/Type/Payload; the richer
	// typed fields (session, sequence, ...) are encoded into Payload by
	// the caller's codec so the segment format stays generic across all
	// EntryType variants.
	s.locations = append(s.locations, entryLocation{
		index:  entry.Index,
		offset: s.nextOffset,
		length: uint32(len(body)),
		term:   entry.Term,
		typ:    entry.Type,
	})
	s.nextOffset += int64(n)
	return nil
}

// readAt reads the raw (term, type, payload) triple at the given location.
func (s *segment) readAt(loc entryLocation) (term uint64, typ raft.EntryType, payload []byte, err error) {
	if loc.discarded {
		return 0, 0, nil, errCompactedOut
	}
	body := make([]byte, loc.length)
	if _, err := s.file.ReadAt(body, loc.offset+4); err != nil {
		return 0, 0, nil, fmt.Errorf("log: read %s at %d: %w", s.path, loc.offset, err)
	}
	term = binary.BigEndian.Uint64(body[0:8])
	typ = raft.EntryType(binary.BigEndian.Uint16(body[8:10]))
	payload = body[10:]
	return term, typ, payload, nil
}

// discard overwrites the record at idx in place with a tombstone: the same
// term, the type field's discardedBit set, and the payload zeroed. The frame
// keeps its original total length so every later record's offset stays
// valid; the slot remains in the offset index (marked discarded) so index
// arithmetic stays contiguous.
func (s *segment) discard(idx uint64) error {
	for i := range s.locations {
		if s.locations[i].index != idx || s.locations[i].discarded {
			continue
		}
		loc := s.locations[i]
		body := make([]byte, loc.length)
		binary.BigEndian.PutUint64(body[0:8], loc.term)
		binary.BigEndian.PutUint16(body[8:10], uint16(loc.typ)|discardedBit)

		if _, err := s.file.WriteAt(body, loc.offset+4); err != nil {
			return fmt.Errorf("log: discard %d in %s: %w", idx, s.path, err)
		}
		s.locations[i].discarded = true
		return nil
	}
	return nil
}

// appendTombstone writes a minimal (payload-free) discarded record for
// index, term and typ at the end of the segment. Used by major compaction,
// which rewrites a segment from scratch and so is free to shrink a
// discarded slot's frame rather than preserve its original size.
func (s *segment) appendTombstone(index, term uint64, typ raft.EntryType) error {
	body := make([]byte, 8+2)
	binary.BigEndian.PutUint64(body[0:8], term)
	binary.BigEndian.PutUint16(body[8:10], uint16(typ)|discardedBit)

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)

	n, err := s.file.WriteAt(frame, s.nextOffset)
	if err != nil {
		return fmt.Errorf("log: append tombstone to %s: %w", s.path, err)
	}
	s.locations = append(s.locations, entryLocation{
		index:     index,
		offset:    s.nextOffset,
		length:    uint32(len(body)),
		term:      term,
		typ:       typ,
		discarded: true,
	})
	s.nextOffset += int64(n)
	return nil
}

func (s *segment) truncateAfter(idx uint64) error {
	keep := s.locations[:0]
	var cutOffset int64 = -1
	for _, loc := range s.locations {
		if loc.index > idx {
			if cutOffset < 0 {
				cutOffset = loc.offset
			}
			continue
		}
		keep = append(keep, loc)
	}
	s.locations = keep
	if cutOffset >= 0 {
		if err := s.file.Truncate(cutOffset); err != nil {
			return fmt.Errorf("log: truncate %s: %w", s.path, err)
		}
		s.nextOffset = cutOffset
	}
	return nil
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

func (s *segment) removeFile() error {
	s.file.Close()
	return os.Remove(s.path)
}

func segmentPath(dir string, firstIndex uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.log", firstIndex))
}

var errCompactedOut = fmt.Errorf("log: entry compacted out")
var raftLogCorruption = fmt.Errorf("log: corrupt segment")
