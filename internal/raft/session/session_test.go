package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionIsOpen(t *testing.T) {
	s := New(1, "conn-1", 100)
	assert.True(t, s.IsOpen())
	assert.Equal(t, uint64(1), s.ID())
	assert.Equal(t, "conn-1", s.ConnectionID())
	assert.Equal(t, int64(100), s.Timestamp())
}

func TestSessionCloseAndExpireAreTerminal(t *testing.T) {
	s := New(1, "conn-1", 0)
	s.Close()
	assert.False(t, s.IsOpen())
	assert.Equal(t, StatusClosed, s.Status())

	s2 := New(2, "conn-2", 0)
	s2.Expire()
	assert.Equal(t, StatusExpired, s2.Status())
}

func TestSessionCommandResponseDedup(t *testing.T) {
	s := New(1, "conn-1", 0)

	_, ok := s.Response(5)
	assert.False(t, ok)

	s.RegisterResponse(5, "result-5")
	resp, ok := s.Response(5)
	require := assert.New(t)
	require.True(ok)
	require.Equal("result-5", resp)
}

func TestSessionClearCommandsBelowEvicts(t *testing.T) {
	s := New(1, "conn-1", 0)
	s.RegisterResponse(1, "r1")
	s.RegisterResponse(2, "r2")
	s.RegisterResponse(3, "r3")

	s.ClearCommandsBelow(2)

	_, ok := s.Response(1)
	assert.False(t, ok)
	_, ok = s.Response(2)
	assert.False(t, ok)
	_, ok = s.Response(3)
	assert.True(t, ok)
}

func TestSessionAwaitCommandSequenceRunsImmediatelyWhenAlreadyPast(t *testing.T) {
	s := New(1, "conn-1", 0)
	s.NextCommandSequence(3)

	ran := false
	s.AwaitCommandSequence(2, func() { ran = true })
	assert.True(t, ran)
}

func TestSessionAwaitCommandSequenceDefersUntilReached(t *testing.T) {
	s := New(1, "conn-1", 0)

	ran := false
	s.AwaitCommandSequence(3, func() { ran = true })
	assert.False(t, ran)

	s.NextCommandSequence(2)
	assert.False(t, ran)

	s.NextCommandSequence(3)
	assert.True(t, ran)
}

func TestSessionPublishAndResend(t *testing.T) {
	s := New(1, "conn-1", 0)

	e1 := s.Publish([]byte("a"))
	e2 := s.Publish([]byte("b"))
	assert.Equal(t, uint64(1), e1.Sequence)
	assert.Equal(t, uint64(2), e2.Sequence)

	resent := s.Resend(0)
	assert.Len(t, resent, 2)
	assert.Equal(t, []byte("a"), resent[0].Payload)
	assert.Equal(t, []byte("b"), resent[1].Payload)

	onlyLast := s.Resend(1)
	assert.Len(t, onlyLast, 1)
	assert.Equal(t, uint64(2), onlyLast[0].Sequence)
}

func TestSessionClearEventsBelow(t *testing.T) {
	s := New(1, "conn-1", 0)
	s.Publish([]byte("a"))
	s.Publish([]byte("b"))

	s.ClearEventsBelow(1)
	resent := s.Resend(0)
	assert.Len(t, resent, 1)
	assert.Equal(t, uint64(2), resent[0].Sequence)
}

func TestSessionCloseDrainsPendingQueries(t *testing.T) {
	s := New(1, "conn-1", 0)
	ran := false
	s.AwaitCommandSequence(5, func() { ran = true })

	drained := s.Close()
	require := assert.New(t)
	require.Len(drained, 1)
	drained[0]()
	require.True(ran)
}
