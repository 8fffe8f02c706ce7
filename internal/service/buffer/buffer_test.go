package buffer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func tick(sym string, price float64, sec int) models.Tick {
	return models.Tick{Symbol: sym, Price: price, Quantity: 1, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
}

func prices(ticks []models.Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, t := range ticks {
		out[i] = t.Price
	}
	return out
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	b := New(3)
	for i, p := range []float64{1, 2, 3, 4} {
		b.AddTick(tick("X", p, i))
	}
	assert.Equal(t, []float64{2, 3, 4}, prices(b.GetTicks("X", Query{})))
}

func TestCapacityPlusK(t *testing.T) {
	const n, k = 50, 17
	b := New(n)
	for i := 0; i < n+k; i++ {
		b.AddTick(tick("BTCUSDT", float64(i), i))
	}
	got := b.GetTicks("btcusdt", Query{})
	require.Len(t, got, n)
	for i, tk := range got {
		assert.Equal(t, float64(k+i), tk.Price)
	}
	st := b.Stats("BTCUSDT")
	require.Len(t, st, 1)
	assert.Equal(t, int64(n+k), st[0].TickCount)
	assert.Equal(t, n, st[0].BufferSize)
	require.NotNil(t, st[0].LatestPrice)
	assert.Equal(t, float64(n+k-1), *st[0].LatestPrice)
}

func TestGetTicksFiltersAndLimit(t *testing.T) {
	b := New(100)
	for i := 0; i < 10; i++ {
		b.AddTick(tick("ETHUSDT", float64(i), i))
	}
	got := b.GetTicks("ETHUSDT", Query{From: t0.Add(2 * time.Second), To: t0.Add(7 * time.Second)})
	assert.Equal(t, []float64{2, 3, 4, 5, 6, 7}, prices(got))

	got = b.GetTicks("ETHUSDT", Query{Limit: 3})
	assert.Equal(t, []float64{7, 8, 9}, prices(got))

	got = b.GetTicks("ETHUSDT", Query{Limit: 2, To: t0.Add(4 * time.Second)})
	assert.Equal(t, []float64{3, 4}, prices(got))

	assert.Nil(t, b.GetTicks("NOPE", Query{}))
}

func TestGetTicksReturnsCopy(t *testing.T) {
	b := New(5)
	b.AddTick(tick("X", 1, 0))
	got := b.GetTicks("X", Query{})
	got[0].Price = 99
	assert.Equal(t, []float64{1}, prices(b.GetTicks("X", Query{})))
}

func TestClearNotifiesHooks(t *testing.T) {
	b := New(5)
	b.AddTick(tick("A", 1, 0))
	b.AddTick(tick("B", 1, 0))

	var got [][]string
	b.OnClear(func(s []string) { got = append(got, s) })

	assert.Equal(t, []string{"A"}, b.Clear("a"))
	assert.Equal(t, []string{"B"}, b.ActiveSymbols())
	assert.Empty(t, b.Clear("missing"))

	b.AddTick(tick("A", 2, 1))
	assert.Equal(t, []string{"A", "B"}, b.Clear())
	assert.Empty(t, b.ActiveSymbols())
	assert.Equal(t, [][]string{{"A"}, {"A", "B"}}, got)

	_, ok := b.LatestPrice("A")
	assert.False(t, ok)
}

func TestClearResetsStats(t *testing.T) {
	b := New(5)
	for i := 0; i < 8; i++ {
		b.AddTick(tick("A", float64(i), i))
	}
	b.Clear("A")

	st := b.Stats("A")
	require.Len(t, st, 1)
	assert.Zero(t, st[0].TickCount)
	assert.Zero(t, st[0].BufferSize)
	assert.Nil(t, st[0].LastTick)
	assert.Nil(t, st[0].LatestPrice)

	b.AddTick(tick("A", 9, 9))
	st = b.Stats("A")
	assert.Equal(t, int64(1), st[0].TickCount)
	require.NotNil(t, st[0].LastTick)
}

func TestConcurrentProducersPreserveOrder(t *testing.T) {
	b := New(1000)
	var wg sync.WaitGroup
	for s := 0; s < 8; s++ {
		sym := fmt.Sprintf("S%d", s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.AddTick(tick(sym, float64(i), i))
				_ = b.GetTicks(sym, Query{Limit: 10})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, b.ActiveSymbols(), 8)
	for _, sym := range b.ActiveSymbols() {
		got := b.GetTicks(sym, Query{})
		require.Len(t, got, 500)
		for i := 1; i < len(got); i++ {
			assert.Less(t, got[i-1].Price, got[i].Price)
		}
	}
}
