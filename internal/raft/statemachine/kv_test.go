package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ StateMachine = (*KVStateMachine)(nil)

func mustEncode(t *testing.T, op KVOperation) []byte {
	t.Helper()
	payload, err := EncodeKVOperation(op)
	require.NoError(t, err)
	return payload
}

func TestKVStateMachineSetGet(t *testing.T) {
	kv := NewKVStateMachine()

	_, err := kv.Apply(Commit{Index: 1, Operation: mustEncode(t, KVOperation{Code: OpSet, Key: "a", Value: "1"})})
	require.NoError(t, err)

	result, err := kv.Apply(Commit{Index: 2, Operation: mustEncode(t, KVOperation{Code: OpGet, Key: "a"})})
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), result)
}

func TestKVStateMachineGetMissingKeyErrors(t *testing.T) {
	kv := NewKVStateMachine()
	_, err := kv.Apply(Commit{Index: 1, Operation: mustEncode(t, KVOperation{Code: OpGet, Key: "missing"})})
	assert.Error(t, err)
}

func TestKVStateMachineDelete(t *testing.T) {
	kv := NewKVStateMachine()
	_, err := kv.Apply(Commit{Index: 1, Operation: mustEncode(t, KVOperation{Code: OpSet, Key: "a", Value: "1"})})
	require.NoError(t, err)

	_, err = kv.Apply(Commit{Index: 2, Operation: mustEncode(t, KVOperation{Code: OpDelete, Key: "a"})})
	require.NoError(t, err)

	_, err = kv.Apply(Commit{Index: 3, Operation: mustEncode(t, KVOperation{Code: OpGet, Key: "a"})})
	assert.Error(t, err)
}

func TestKVStateMachineFilterSupersededWrite(t *testing.T) {
	kv := NewKVStateMachine()
	first := Commit{Index: 1, Operation: mustEncode(t, KVOperation{Code: OpSet, Key: "a", Value: "1"})}
	second := Commit{Index: 2, Operation: mustEncode(t, KVOperation{Code: OpSet, Key: "a", Value: "2"})}

	_, err := kv.Apply(first)
	require.NoError(t, err)
	_, err = kv.Apply(second)
	require.NoError(t, err)

	assert.True(t, kv.Filter(first, CompactionContext{Index: 2, Major: true}), "superseded write should be filterable")
	assert.False(t, kv.Filter(second, CompactionContext{Index: 2, Major: true}), "latest write must survive")
}

func TestKVStateMachineFilterNeverDiscardsReads(t *testing.T) {
	kv := NewKVStateMachine()
	read := Commit{Index: 1, Operation: mustEncode(t, KVOperation{Code: OpGet, Key: "a"})}
	assert.False(t, kv.Filter(read, CompactionContext{Index: 5, Major: true}))
}

func TestKVStateMachineSnapshot(t *testing.T) {
	kv := NewKVStateMachine()
	_, err := kv.Apply(Commit{Index: 1, Operation: mustEncode(t, KVOperation{Code: OpSet, Key: "a", Value: "1"})})
	require.NoError(t, err)

	snap := kv.Snapshot()
	assert.Equal(t, map[string]string{"a": "1"}, snap)
}
