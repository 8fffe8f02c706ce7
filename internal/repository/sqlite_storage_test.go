package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
)

func newMemStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreAndQuery(t *testing.T) {
	s := newMemStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var ticks []*models.Tick
	for i := 0; i < 5; i++ {
		ticks = append(ticks, &models.Tick{Symbol: "BTCUSDT", Price: float64(100 + i), Quantity: 1, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	ticks = append(ticks, &models.Tick{Symbol: "ETHUSDT", Price: 10, Quantity: 2, Timestamp: base}, nil)
	require.NoError(t, s.StoreBatch(ctx, ticks))

	got, err := s.Query(ctx, "BTCUSDT", base, base.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 100.0, got[0].Price)
	assert.Equal(t, 104.0, got[4].Price)
	assert.True(t, got[0].Timestamp.Equal(base))

	got, err = s.Query(ctx, "BTCUSDT", base, base.Add(time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float64{103, 104}, []float64{got[0].Price, got[1].Price})

	got, err = s.Query(ctx, "BTCUSDT", base.Add(time.Second), base.Add(2*time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.Health(ctx))
}

func TestSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "market_data.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Store(context.Background(), &models.Tick{Symbol: "A", Price: 1, Timestamp: time.Now()}))
}

func TestTickSchemaNamesTable(t *testing.T) {
	stmts := TickSchema("market_ticks")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS market_ticks")
	assert.Contains(t, stmts[0], "ORDER BY (symbol, ts)")
}

func TestTickMessageShape(t *testing.T) {
	ts := time.UnixMilli(1700000000123).UTC()
	m := newTickMessage(&models.Tick{Symbol: "BTCUSDT", Price: 1.5, Quantity: 2, Timestamp: ts})
	assert.Equal(t, []byte("BTCUSDT"), m.Key)
	assert.Equal(t, tickMessage{Symbol: "BTCUSDT", TsMillis: 1700000000123, Price: 1.5, Quantity: 2}, m.Value)
}
