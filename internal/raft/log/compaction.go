package log

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/metrics"
)

// DefaultMinorInterval and DefaultMajorInterval match the cadence described
// for the two-tier compaction scheme: minor passes run frequently and cheaply,
// major passes run rarely and do the expensive segment rewrite.
const (
	DefaultMinorInterval = time.Minute
	DefaultMajorInterval = time.Hour
)

// IndexSource reports the watermarks compaction runs against: the commit
// index (entries a quorum of active members has replicated) for minor
// passes, and the global index (entries every active member has replicated)
// for major passes.
type IndexSource interface {
	CommitIndex() uint64
	GlobalIndex() uint64
}

// Compactor runs the minor and major compaction passes on a Log on their own
// tickers. Only one pass — of either kind — runs at a time; a tick that
// arrives while a pass is still running is dropped rather than queued.
type Compactor struct {
	log    *Log
	filter *EntryFilter
	index  IndexSource
	logger logging.Logger

	minorInterval time.Duration
	majorInterval time.Duration

	running sync.Mutex
	metrics *metrics.Metrics
}

// SetMetrics attaches a metrics sink that RunMinor/RunMajor report to. Nil
// (the default) disables reporting; this is a setter rather than a
// constructor parameter so existing callers are unaffected.
func (c *Compactor) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// NewCompactor builds a Compactor. Zero intervals fall back to the defaults.
func NewCompactor(l *Log, filter *EntryFilter, index IndexSource, minorInterval, majorInterval time.Duration, logger logging.Logger) *Compactor {
	if minorInterval <= 0 {
		minorInterval = DefaultMinorInterval
	}
	if majorInterval <= 0 {
		majorInterval = DefaultMajorInterval
	}
	if logger == nil {
		logger = logging.Noop()
	}
	return &Compactor{
		log:           l,
		filter:        filter,
		index:         index,
		logger:        logger,
		minorInterval: minorInterval,
		majorInterval: majorInterval,
	}
}

// Run drives both tickers until ctx is cancelled. It is meant to be started
// in its own goroutine; unlike the consensus and state-machine loops,
// compaction is not on the single-threaded hot path, so it locks the log's
// own mutex when it mutates segments.
func (c *Compactor) Run(ctx context.Context) {
	minorTicker := time.NewTicker(c.minorInterval)
	majorTicker := time.NewTicker(c.majorInterval)
	defer minorTicker.Stop()
	defer majorTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-minorTicker.C:
			if err := c.RunMinor(); err != nil {
				c.logger.Warnf("minor compaction: %v", err)
			}
		case <-majorTicker.C:
			if err := c.RunMajor(); err != nil {
				c.logger.Warnf("major compaction: %v", err)
			}
		}
	}
}

// RunMinor discards individual committed entries in place, up to the commit
// index, leaving holes.
func (c *Compactor) RunMinor() error {
	if !c.running.TryLock() {
		return nil
	}
	defer c.running.Unlock()

	commit := c.index.CommitIndex()

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	// Unlike major compaction, minor discard only tombstones an
	// already-written frame in place; it never resizes or replaces a
	// segment file, so it is safe to run against the active segment too.
	discarded := 0
	for _, seg := range c.log.segments {
		for _, loc := range seg.locations {
			if loc.discarded || loc.index > commit {
				continue
			}
			entry, ok := c.log.get(loc.index)
			if !ok {
				continue
			}
			if c.filter.ShouldDiscard(entry, Minor) {
				if err := seg.discard(loc.index); err != nil {
					return err
				}
				discarded++
			}
		}
	}
	if discarded > 0 {
		c.logger.Debugf("minor compaction discarded %d entries up to commit index %d", discarded, commit)
	}
	if c.metrics != nil {
		c.metrics.RecordMinorCompaction()
	}
	return nil
}

// RunMajor rewrites whole sealed segments to physically remove discarded
// entries, up to the global index. The active segment is never rewritten.
// A segment with no discardable entries is left untouched.
func (c *Compactor) RunMajor() error {
	if !c.running.TryLock() {
		return nil
	}
	defer c.running.Unlock()

	global := c.index.GlobalIndex()

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	active := c.log.activeSegment()
	for i, seg := range c.log.segments {
		if seg == active || seg.lastIndex() > global {
			continue
		}
		rewritten, changed, err := c.rewriteSegment(seg, global)
		if err != nil {
			return fmt.Errorf("log: major compaction segment %s: %w", seg.path, err)
		}
		if changed {
			c.log.segments[i] = rewritten
		}
	}
	if c.metrics != nil {
		c.metrics.RecordMajorCompaction()
	}
	return nil
}

// rewriteSegment writes every non-discardable entry of seg into a new
// temporary file, then atomically renames it over seg's path, so a crash
// mid-rewrite never leaves a half-written segment visible under its real
// name.
func (c *Compactor) rewriteSegment(seg *segment, global uint64) (*segment, bool, error) {
	anyDiscardable := false
	for _, loc := range seg.locations {
		if loc.discarded {
			continue
		}
		entry, ok := c.log.get(loc.index)
		if ok && c.filter.ShouldDiscard(entry, Major) {
			anyDiscardable = true
			break
		}
	}
	if !anyDiscardable {
		return seg, false, nil
	}

	tmpPath := seg.path + ".compact"
	_ = os.Remove(tmpPath)
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, false, err
	}

	next := &segment{
		path: tmpPath,
		file: tmp,
		header: segmentHeader{
			FirstIndex: seg.header.FirstIndex,
			MaxEntries: seg.header.MaxEntries,
			CreatedAt:  seg.header.CreatedAt,
		},
	}
	if err := next.writeHeader(); err != nil {
		tmp.Close()
		return nil, false, err
	}
	next.nextOffset = headerSize

	for _, loc := range seg.locations {
		if loc.discarded {
			if err := next.appendTombstone(loc.index, loc.term, loc.typ); err != nil {
				tmp.Close()
				return nil, false, err
			}
			continue
		}
		entry, ok := c.log.get(loc.index)
		if ok && c.filter.ShouldDiscard(entry, Major) {
			if err := next.appendTombstone(loc.index, loc.term, loc.typ); err != nil {
				tmp.Close()
				return nil, false, err
			}
			continue
		}
		term, typ, payload, err := seg.readAt(loc)
		if err != nil {
			tmp.Close()
			return nil, false, err
		}
		if err := next.append(&raft.Entry{Index: loc.index, Term: term, Type: typ, Payload: payload}); err != nil {
			tmp.Close()
			return nil, false, err
		}
	}

	if err := next.sync(); err != nil {
		tmp.Close()
		return nil, false, err
	}
	if err := tmp.Close(); err != nil {
		return nil, false, err
	}
	if err := seg.close(); err != nil {
		return nil, false, err
	}
	if err := os.Rename(tmpPath, seg.path); err != nil {
		return nil, false, fmt.Errorf("log: rename compacted segment: %w", err)
	}

	reopened, err := openSegment(seg.path)
	if err != nil {
		return nil, false, err
	}
	return reopened, true, nil
}
