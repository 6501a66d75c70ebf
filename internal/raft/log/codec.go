package log

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/obreshkov/raftcore/internal/raft"
)

// wireBody carries every typed field an Entry variant may need, encoded into
// the segment's opaque payload slot. Keeping the segment framing itself
// generic (length | term | type | payload) means new EntryType variants
// never require a segment format change.
type wireBody struct {
	ConnectionID string
	Timestamp    int64
	Session      uint64
	Sequence     uint64
	EventAck     uint64
	Payload      []byte
	Active       []raft.Member
	Passive      []raft.Member
}

func encodeBody(e *raft.Entry) ([]byte, error) {
	body := wireBody{
		ConnectionID: e.ConnectionID,
		Timestamp:    e.Timestamp,
		Session:      e.Session,
		Sequence:     e.Sequence,
		EventAck:     e.EventAck,
		Payload:      e.Payload,
		Active:       e.Active,
		Passive:      e.Passive,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&body); err != nil {
		return nil, fmt.Errorf("log: encode entry body: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBody(raw []byte, index, term uint64, typ raft.EntryType) (*raft.Entry, error) {
	var body wireBody
	if len(raw) > 0 {
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&body); err != nil {
			return nil, fmt.Errorf("log: decode entry body: %w", err)
		}
	}
	return &raft.Entry{
		Index:        index,
		Term:         term,
		Type:         typ,
		ConnectionID: body.ConnectionID,
		Timestamp:    body.Timestamp,
		Session:      body.Session,
		Sequence:     body.Sequence,
		EventAck:     body.EventAck,
		Payload:      body.Payload,
		Active:       body.Active,
		Passive:      body.Passive,
	}, nil
}
