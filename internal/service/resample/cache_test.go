package resample

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/service/buffer"
	"QuantPulse/pkg/logger"
)

func seeded(t *testing.T) (*buffer.TickBuffer, *Cache) {
	t.Helper()
	buf := buffer.New(1000)
	for i := 0; i < 120; i++ {
		buf.AddTick(models.Tick{Symbol: "ETHUSDT", Price: 100 + float64(i%7), Quantity: 1, Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}
	c := NewCache(buf, Config{Timeframes: []drepo.Timeframe{drepo.TF1s, drepo.TF1m}}, nil, logger.Nop())
	buf.OnClear(c.Invalidate)
	return buf, c
}

func TestGetOHLCVIdempotent(t *testing.T) {
	_, c := seeded(t)
	a, err := c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	require.NoError(t, err)
	b, err := c.GetOHLCV("ethusdt", drepo.TF1m, Query{}, false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 2)
}

func TestGetOHLCVUsesCacheUntilForced(t *testing.T) {
	buf, c := seeded(t)
	first, err := c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	require.NoError(t, err)

	buf.AddTick(models.Tick{Symbol: "ETHUSDT", Price: 500, Quantity: 1, Timestamp: t0.Add(5 * time.Minute)})

	cached, _ := c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	assert.Equal(t, first, cached)

	fresh, _ := c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, true)
	require.Len(t, fresh, 3)
	assert.Equal(t, 500.0, fresh[2].Close)
}

func TestGetOHLCVTTL(t *testing.T) {
	buf, c := seeded(t)
	c.cfg.TTL = time.Minute
	now := time.Now()
	c.now = func() time.Time { return now }

	_, _ = c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	buf.AddTick(models.Tick{Symbol: "ETHUSDT", Price: 500, Quantity: 1, Timestamp: t0.Add(5 * time.Minute)})

	now = now.Add(2 * time.Minute)
	got, _ := c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	assert.Len(t, got, 3)
}

func TestClearInvalidates(t *testing.T) {
	buf, c := seeded(t)
	_, _ = c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	_, _ = c.GetOHLCV("ETHUSDT", drepo.TF1s, Query{}, false)
	assert.Equal(t, 2, c.Len())

	buf.Clear("ETHUSDT")
	assert.Equal(t, 0, c.Len())

	got, err := c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// clearingSource clears the symbol right after handing out its ticks, the
// way a concurrent Clear can land between the read and the cache store.
type clearingSource struct {
	*buffer.TickBuffer
	once bool
}

func (s *clearingSource) GetTicks(symbol string, q buffer.Query) []models.Tick {
	ticks := s.TickBuffer.GetTicks(symbol, q)
	if !s.once {
		s.once = true
		s.TickBuffer.Clear(symbol)
	}
	return ticks
}

func TestClearDuringRebuildIsNotOverwritten(t *testing.T) {
	buf, _ := seeded(t)
	src := &clearingSource{TickBuffer: buf}
	c := NewCache(src, Config{Timeframes: []drepo.Timeframe{drepo.TF1m}}, nil, logger.Nop())
	buf.OnClear(c.Invalidate)

	got, err := c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 0, c.Len())

	got, err = c.GetOHLCV("ETHUSDT", drepo.TF1m, Query{}, false)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, c.Len())
}

func TestGetOHLCVRejectsUnknownTimeframe(t *testing.T) {
	_, c := seeded(t)
	_, err := c.GetOHLCV("ETHUSDT", drepo.Timeframe("7m"), Query{}, false)
	assert.Error(t, err)
}

func TestCloseSeries(t *testing.T) {
	_, c := seeded(t)
	pts, err := c.CloseSeries(context.Background(), "ETHUSDT", drepo.TF1s, 10)
	require.NoError(t, err)
	require.Len(t, pts, 10)
	assert.Equal(t, t0.Add(119*time.Second), pts[9].Timestamp)
	assert.Equal(t, 100+float64(119%7), pts[9].Close)
}

func TestRefreshWarmsEveryTimeframe(t *testing.T) {
	_, c := seeded(t)
	c.Refresh(context.Background())
	assert.Equal(t, 2, c.Len())

	c.cfg.Interval = 10 * time.Millisecond
	c.Start(context.Background())
	c.Start(context.Background())
	c.Stop()
	c.Stop()
}
