package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopStartIsIdempotent(t *testing.T) {
	var l Loop
	var n atomic.Int32

	require.True(t, l.Start(context.Background(), 5*time.Millisecond, true, func(context.Context) { n.Add(1) }))
	assert.False(t, l.Start(context.Background(), 5*time.Millisecond, true, func(context.Context) { n.Add(100) }))
	assert.True(t, l.Running())

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	l.Stop()
	assert.False(t, l.Running())
	assert.Less(t, n.Load(), int32(100))
}

func TestLoopStopWaitsForIteration(t *testing.T) {
	var l Loop
	var finished atomic.Bool
	started := make(chan struct{})

	l.Start(context.Background(), time.Hour, true, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
	})
	<-started
	l.Stop()
	assert.True(t, finished.Load())

	// second stop is a no-op
	l.Stop()
}

func TestLoopRestart(t *testing.T) {
	var l Loop
	var n atomic.Int32
	fn := func(context.Context) { n.Add(1) }

	require.True(t, l.Start(context.Background(), time.Hour, true, fn))
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	l.Stop()
	require.True(t, l.Start(context.Background(), time.Hour, true, fn))
	require.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, time.Millisecond)
	l.Stop()
}

func TestLoopConcurrentStopsBothJoin(t *testing.T) {
	var l Loop
	var inFlight atomic.Bool
	started := make(chan struct{})

	l.Start(context.Background(), time.Hour, true, func(ctx context.Context) {
		inFlight.Store(true)
		close(started)
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		inFlight.Store(false)
	})
	<-started

	var wg sync.WaitGroup
	returned := make([]bool, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Stop()
			returned[i] = !inFlight.Load()
		}()
	}
	wg.Wait()

	assert.Equal(t, []bool{true, true}, returned)
	assert.False(t, l.Running())
}
