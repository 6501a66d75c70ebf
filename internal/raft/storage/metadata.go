// Package storage durably persists the small amount of metadata a server
// must remember across restarts: currentTerm, votedFor, and the committed
// cluster configuration version. The replicated log itself lives in
// internal/raft/log, which is its own append-only file format; this
// package is grounded on the teacher's internal/raft/storage/bbolt_storage.go,
// narrowed from "also stores the log, via protobuf" to metadata only,
// since the protobuf-backed log storage is superseded by the segmented log
// package (see DESIGN.md).
package storage

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	metadataBucket = []byte("metadata")

	currentTermKey  = []byte("currentTerm")
	votedForKey     = []byte("votedFor")
	configVersionKey = []byte("configVersion")
)

// MetadataStore persists the term/vote/configuration-version triple a
// server must recover on restart before it may safely rejoin the cluster.
type MetadataStore struct {
	conn *bbolt.DB
}

// Open opens (creating if necessary) a bbolt-backed metadata store at path.
func Open(path string) (*MetadataStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metadataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create metadata bucket: %w", err)
	}

	return &MetadataStore{conn: db}, nil
}

// CurrentTerm returns the persisted term, or 0 if never set.
func (s *MetadataStore) CurrentTerm() (uint64, error) {
	var term uint64
	err := s.conn.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(metadataBucket).Get(currentTermKey)
		if data != nil {
			term = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	return term, err
}

// SetCurrentTerm persists term.
func (s *MetadataStore) SetCurrentTerm(term uint64) error {
	return s.conn.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, term)
		return tx.Bucket(metadataBucket).Put(currentTermKey, buf)
	})
}

// VotedFor returns the candidate this server voted for in the current
// term, or ("", false) if it has not voted.
func (s *MetadataStore) VotedFor() (string, bool, error) {
	var candidate string
	var voted bool
	err := s.conn.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(metadataBucket).Get(votedForKey)
		if data != nil {
			candidate = string(data)
			voted = true
		}
		return nil
	})
	return candidate, voted, err
}

// SetVotedFor persists candidate as the vote for the current term. Passing
// an empty string clears the vote, as is required on every term advance.
func (s *MetadataStore) SetVotedFor(candidate string) error {
	return s.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(metadataBucket)
		if candidate == "" {
			return bucket.Delete(votedForKey)
		}
		return bucket.Put(votedForKey, []byte(candidate))
	})
}

// ConfigVersion returns the index of the last-applied Configuration entry,
// or 0 if none has ever been applied.
func (s *MetadataStore) ConfigVersion() (uint64, error) {
	var version uint64
	err := s.conn.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(metadataBucket).Get(configVersionKey)
		if data != nil {
			version = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	return version, err
}

// SetConfigVersion persists version.
func (s *MetadataStore) SetConfigVersion(version uint64) error {
	return s.conn.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, version)
		return tx.Bucket(metadataBucket).Put(configVersionKey, buf)
	})
}

// Close closes the underlying database.
func (s *MetadataStore) Close() error {
	return s.conn.Close()
}
