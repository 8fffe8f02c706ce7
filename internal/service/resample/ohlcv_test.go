package resample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tk(price, qty float64, offset time.Duration) models.Tick {
	return models.Tick{Symbol: "BTCUSDT", Price: price, Quantity: qty, Timestamp: t0.Add(offset)}
}

func TestOHLCVBuckets(t *testing.T) {
	ticks := []models.Tick{
		tk(10, 1, 0),
		tk(12, 2, 10*time.Second),
		tk(9, 1, 20*time.Second),
		tk(11, 3, 50*time.Second),
		// 12:01 empty
		tk(20, 1, 2*time.Minute+5*time.Second),
	}
	got := OHLCV(ticks, time.Minute)
	require.Len(t, got, 2)

	assert.Equal(t, models.Candle{Timestamp: t0, Open: 10, High: 12, Low: 9, Close: 11, Volume: 7}, got[0])
	assert.Equal(t, models.Candle{Timestamp: t0.Add(2 * time.Minute), Open: 20, High: 20, Low: 20, Close: 20, Volume: 1}, got[1])
}

func TestOHLCVOpenCloseFollowArrival(t *testing.T) {
	ticks := []models.Tick{
		tk(5, 1, 30*time.Second),
		tk(7, 1, 10*time.Second),
	}
	got := OHLCV(ticks, time.Minute)
	require.Len(t, got, 1)
	assert.Equal(t, 5.0, got[0].Open)
	assert.Equal(t, 7.0, got[0].Close)
}

func TestOHLCVFillsZeroPrices(t *testing.T) {
	ticks := []models.Tick{
		tk(0, 1, 0), // leading zero bucket is back-filled
		tk(10, 1, time.Minute),
		tk(0, 1, 2*time.Minute), // middle zero bucket is forward-filled
		tk(12, 1, 3*time.Minute),
	}
	got := OHLCV(ticks, time.Minute)
	require.Len(t, got, 4)

	assert.Equal(t, 10.0, got[0].Open)
	assert.Equal(t, 10.0, got[0].Close)
	assert.Equal(t, 10.0, got[2].Open)
	assert.Equal(t, 10.0, got[2].Close)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.High, c.Open)
		assert.GreaterOrEqual(t, c.High, c.Close)
		assert.LessOrEqual(t, c.Low, c.Open)
		assert.LessOrEqual(t, c.Low, c.Close)
	}
}

func TestOHLCVWidensHighLowAfterFill(t *testing.T) {
	// low is zero inside the bucket, so it is filled from the previous candle
	ticks := []models.Tick{
		tk(5, 1, 0),
		tk(8, 1, time.Minute),
		tk(0, 1, time.Minute+time.Second),
		tk(9, 1, time.Minute+2*time.Second),
	}
	got := OHLCV(ticks, time.Minute)
	require.Len(t, got, 2)
	assert.Equal(t, 5.0, got[1].Low)
	assert.Equal(t, 9.0, got[1].High)
}

func TestOHLCVAllMissingDropped(t *testing.T) {
	assert.Empty(t, OHLCV([]models.Tick{tk(0, 1, 0)}, time.Second))
	assert.Nil(t, OHLCV(nil, time.Second))
}

func TestFilter(t *testing.T) {
	var cs []models.Candle
	for i := 0; i < 10; i++ {
		cs = append(cs, models.Candle{Timestamp: t0.Add(time.Duration(i) * time.Minute), Close: float64(i)})
	}
	got := Filter(cs, t0.Add(2*time.Minute), t0.Add(8*time.Minute), 3)
	require.Len(t, got, 3)
	assert.Equal(t, 6.0, got[0].Close)
	assert.Equal(t, 8.0, got[2].Close)
	assert.Len(t, Filter(cs, time.Time{}, time.Time{}, 0), 10)
}
