package loop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := New(8)
	defer l.Shutdown()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, l.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCallReturnsResult(t *testing.T) {
	l := New(4)
	defer l.Shutdown()

	result, err := Call(l, func() int { return 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestLoopShutdownDrainsQueuedTasks(t *testing.T) {
	l := New(4)

	ran := make(chan struct{}, 1)
	require.True(t, l.Submit(func() { ran <- struct{}{} }))
	l.Shutdown()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued task never ran before shutdown completed")
	}
}

func TestLoopSubmitAfterShutdownFails(t *testing.T) {
	l := New(4)
	l.Shutdown()
	assert.False(t, l.Submit(func() {}))
}

func TestLoopShutdownIsIdempotent(t *testing.T) {
	l := New(4)
	l.Shutdown()
	l.Shutdown()
}
