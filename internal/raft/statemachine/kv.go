package statemachine

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/obreshkov/raftcore/internal/raft/session"
)

// OpCode identifies a KVStateMachine operation.
type OpCode uint16

const (
	OpSet OpCode = iota
	OpGet
	OpDelete
)

// KVOperation is the gob-encoded payload carried in Commit.Operation for
// the example key/value state machine.
type KVOperation struct {
	Code  OpCode
	Key   string
	Value string
}

// EncodeKVOperation is the encoder a client uses to build CommandRequest /
// QueryRequest operation payloads for this state machine.
func EncodeKVOperation(op KVOperation) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(op); err != nil {
		return nil, fmt.Errorf("encode kv operation: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeKVOperation(payload []byte) (KVOperation, error) {
	var op KVOperation
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&op); err != nil {
		return KVOperation{}, fmt.Errorf("decode kv operation: %w", err)
	}
	return op, nil
}

// KVStateMachine is a simple key-value store, the example StateMachine
// implementation grounded on the teacher's KVStateMachine
// (internal/raft/state_machine/kv_state_machine.go), adapted from its
// string-command parsing to typed KVOperation values dispatched through an
// operation registry (spec §9: "no reflection").
type KVStateMachine struct {
	mu    sync.RWMutex
	store map[string]string
	// lastWrite tracks the log index of the most recent write to each key,
	// so Filter can tell whether a given commit's effect has since been
	// overwritten and is therefore safe to compact away.
	lastWrite map[string]uint64

	handlers map[OpCode]OperationHandler
}

func NewKVStateMachine() *KVStateMachine {
	kv := &KVStateMachine{
		store:     make(map[string]string),
		lastWrite: make(map[string]uint64),
	}
	kv.handlers = map[OpCode]OperationHandler{
		OpSet:    kv.applySet,
		OpGet:    kv.applyGet,
		OpDelete: kv.applyDelete,
	}
	return kv
}

func (kv *KVStateMachine) applySet(commit Commit) (any, error) {
	op, err := decodeKVOperation(commit.Operation)
	if err != nil {
		return nil, err
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.store[op.Key] = op.Value
	kv.lastWrite[op.Key] = commit.Index
	return struct{}{}, nil
}

func (kv *KVStateMachine) applyGet(commit Commit) (any, error) {
	op, err := decodeKVOperation(commit.Operation)
	if err != nil {
		return nil, err
	}
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	value, ok := kv.store[op.Key]
	if !ok {
		return nil, fmt.Errorf("key %q not found", op.Key)
	}
	return []byte(value), nil
}

func (kv *KVStateMachine) applyDelete(commit Commit) (any, error) {
	op, err := decodeKVOperation(commit.Operation)
	if err != nil {
		return nil, err
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.store, op.Key)
	kv.lastWrite[op.Key] = commit.Index
	return struct{}{}, nil
}

// Apply decodes commit.Operation and dispatches it through the operation
// registry built at construction.
func (kv *KVStateMachine) Apply(commit Commit) (any, error) {
	op, err := decodeKVOperation(commit.Operation)
	if err != nil {
		return nil, err
	}
	handler, ok := kv.handlers[op.Code]
	if !ok {
		return nil, fmt.Errorf("unknown kv operation code %d", op.Code)
	}
	return handler(commit)
}

// Filter reports whether commit's write to its key has since been
// superseded by a later write, making the entry safe to compact away.
func (kv *KVStateMachine) Filter(commit Commit, ctx CompactionContext) bool {
	op, err := decodeKVOperation(commit.Operation)
	if err != nil || op.Code == OpGet {
		return false
	}

	kv.mu.RLock()
	defer kv.mu.RUnlock()
	last, ok := kv.lastWrite[op.Key]
	if !ok {
		return false
	}
	return last > commit.Index
}

func (kv *KVStateMachine) Register(sess *session.Session) {}
func (kv *KVStateMachine) Expire(sess *session.Session)   {}
func (kv *KVStateMachine) Close(sess *session.Session)    {}

// Snapshot returns a copy of the current key/value state, for tests.
func (kv *KVStateMachine) Snapshot() map[string]string {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	out := make(map[string]string, len(kv.store))
	for k, v := range kv.store {
		out[k] = v
	}
	return out
}
