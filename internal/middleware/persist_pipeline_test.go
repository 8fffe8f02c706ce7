package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	"QuantPulse/pkg/metrics"
)

type fakeProc struct {
	mu      sync.Mutex
	batches [][]*models.Tick
	failN   int
	calls   int
}

func (f *fakeProc) ProcessBatch(_ context.Context, ticks []*models.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return errors.New("backend down")
	}
	f.batches = append(f.batches, append([]*models.Tick(nil), ticks...))
	return nil
}

func (f *fakeProc) prices() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []float64
	for _, b := range f.batches {
		for _, t := range b {
			out = append(out, t.Price)
		}
	}
	return out
}

func tick(price float64) *models.Tick {
	return &models.Tick{Symbol: "BTCUSDT", Price: price, Quantity: 1, Timestamp: time.Unix(1700000000, 0).UTC()}
}

func TestPipelineFlushesBySize(t *testing.T) {
	proc := &fakeProc{}
	p := NewPersistPipeline(proc, metrics.Nop{}, WithBatch(2, time.Hour))
	p.Start(context.Background())
	defer p.Stop(context.Background())

	for i := 1; i <= 4; i++ {
		require.True(t, p.Submit(tick(float64(i))))
	}
	require.Eventually(t, func() bool { return len(proc.prices()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{1, 2, 3, 4}, proc.prices())
}

func TestPipelineFlushesByTimeout(t *testing.T) {
	proc := &fakeProc{}
	p := NewPersistPipeline(proc, metrics.Nop{}, WithBatch(100, 10*time.Millisecond))
	p.Start(context.Background())
	defer p.Stop(context.Background())

	require.True(t, p.Submit(tick(1)))
	require.Eventually(t, func() bool { return len(proc.prices()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestPipelineRetriesThenSucceeds(t *testing.T) {
	proc := &fakeProc{failN: 2}
	p := NewPersistPipeline(proc, metrics.Nop{}, WithBatch(1, time.Hour), WithRetry(5, time.Millisecond, 2*time.Millisecond))
	p.Start(context.Background())
	defer p.Stop(context.Background())

	require.True(t, p.Submit(tick(7)))
	require.Eventually(t, func() bool { return len(proc.prices()) == 1 }, time.Second, 5*time.Millisecond)
	proc.mu.Lock()
	assert.Equal(t, 3, proc.calls)
	proc.mu.Unlock()
}

func TestPipelineDropsAfterMaxAttempts(t *testing.T) {
	proc := &fakeProc{failN: 100}
	p := NewPersistPipeline(proc, metrics.Nop{}, WithBatch(1, time.Hour), WithRetry(3, time.Millisecond, time.Millisecond))
	p.Start(context.Background())

	require.True(t, p.Submit(tick(1)))
	require.Eventually(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		return proc.calls == 3
	}, time.Second, 5*time.Millisecond)
	p.Stop(context.Background())
	assert.Empty(t, proc.prices())
}

func TestPipelineRejectsInvalidAndFull(t *testing.T) {
	p := NewPersistPipeline(&fakeProc{}, metrics.Nop{}, WithQueueSize(1))
	assert.False(t, p.Submit(nil))
	assert.False(t, p.Submit(&models.Tick{Symbol: "X"}))
	assert.False(t, p.Submit(&models.Tick{Symbol: "X", Price: -1, Timestamp: time.Now()}))

	assert.True(t, p.Submit(tick(1)))
	assert.False(t, p.Submit(tick(2)))
	assert.Equal(t, 1, p.Pending())
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	p := NewPersistPipeline(&fakeProc{}, metrics.Nop{}, WithMaxRPS(1))
	assert.True(t, p.Submit(tick(1)))
	assert.False(t, p.Submit(tick(2)))
	other := tick(3)
	other.Symbol = "ETHUSDT"
	assert.True(t, p.Submit(other))
}

func TestPipelineStopDrainsQueue(t *testing.T) {
	proc := &fakeProc{}
	p := NewPersistPipeline(proc, metrics.Nop{}, WithBatch(2, time.Hour))
	for i := 1; i <= 5; i++ {
		require.True(t, p.Submit(tick(float64(i))))
	}
	p.Start(context.Background())
	p.Stop(context.Background())
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, proc.prices())
}
