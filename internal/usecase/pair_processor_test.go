package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/service/cache"
	"QuantPulse/pkg/logger"
)

type staticSymbols []string

func (s staticSymbols) ActiveSymbols() []string { return s }

func TestPairsUnorderedAndSorted(t *testing.T) {
	assert.Equal(t, []string{"ADA-BTC", "ADA-ETH", "BTC-ETH"}, Pairs([]string{"eth", "BTC", "ada", "btc"}))
	assert.Empty(t, Pairs([]string{"BTC"}))
}

func TestPairProcessorStoresSnapshots(t *testing.T) {
	an := &stubAnalyzer{res: models.PairAnalytics{
		ZScore: []models.MetricPoint{{Timestamp: time.Unix(0, 0).UTC(), Value: 1.5}},
	}}
	store := cache.NewTTLCache()
	p := NewPairProcessor(staticSymbols{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, an, store, PairProcessorConfig{}, nil, logger.Nop())

	assert.Equal(t, 3, p.ProcessOnce(context.Background()))
	assert.Equal(t, 3, store.Len())

	got, ok, err := p.Latest(context.Background(), "btcusdt-ethusdt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT-ETHUSDT", got.Pair)
	last, ok := models.Last(got.ZScore)
	require.True(t, ok)
	assert.Equal(t, 1.5, last.Value)

	_, ok, err = p.Latest(context.Background(), "BTCUSDT-XRPUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPairProcessorSkipsErrorsAndEmpty(t *testing.T) {
	store := cache.NewTTLCache()
	p := NewPairProcessor(staticSymbols{"A", "B"}, &stubAnalyzer{res: models.PairAnalytics{Error: "boom"}}, store, PairProcessorConfig{}, nil, logger.Nop())
	assert.Equal(t, 0, p.ProcessOnce(context.Background()))

	p = NewPairProcessor(staticSymbols{"A", "B"}, &stubAnalyzer{}, store, PairProcessorConfig{}, nil, logger.Nop())
	assert.Equal(t, 0, p.ProcessOnce(context.Background()))
	assert.Equal(t, 0, store.Len())
}

func TestPairProcessorLoop(t *testing.T) {
	an := &stubAnalyzer{res: models.PairAnalytics{Spread: []models.MetricPoint{{Value: 1}}}}
	p := NewPairProcessor(staticSymbols{"A", "B"}, an, cache.NewTTLCache(), PairProcessorConfig{Interval: 5 * time.Millisecond}, nil, logger.Nop())
	p.Start(context.Background())
	require.Eventually(t, func() bool {
		an.mu.Lock()
		defer an.mu.Unlock()
		return an.calls >= 2
	}, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()
}
