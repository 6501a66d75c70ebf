package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRegisterAndGet(t *testing.T) {
	tbl := NewTable()
	s := tbl.Register(1, "conn-1", 0)
	require.NotNil(t, s)

	got, ok := tbl.Get(1)
	require.True(t, ok)
	assert.Equal(t, s, got)

	_, ok = tbl.Get(2)
	assert.False(t, ok)
}

func TestTableRemove(t *testing.T) {
	tbl := NewTable()
	tbl.Register(1, "conn-1", 0)
	tbl.Remove(1)

	_, ok := tbl.Get(1)
	assert.False(t, ok)
}

func TestTableSessionOpen(t *testing.T) {
	tbl := NewTable()
	s := tbl.Register(1, "conn-1", 0)

	assert.True(t, tbl.SessionOpen(1))
	assert.False(t, tbl.SessionOpen(99))

	s.Close()
	assert.False(t, tbl.SessionOpen(1))
}

func TestTableExpireBefore(t *testing.T) {
	tbl := NewTable()
	tbl.Register(1, "conn-1", 10)
	tbl.Register(2, "conn-2", 100)

	expired := tbl.ExpireBefore(50)
	require.Len(t, expired, 1)
	assert.Equal(t, uint64(1), expired[0].ID())
}

func TestTableAll(t *testing.T) {
	tbl := NewTable()
	tbl.Register(1, "conn-1", 0)
	tbl.Register(2, "conn-2", 0)

	assert.Len(t, tbl.All(), 2)
}
