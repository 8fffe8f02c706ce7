package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCombinedTrade(t *testing.T) {
	raw := `{"stream":"btcusdt@trade","data":{"e":"trade","E":1700000000100,"s":"BTCUSDT","t":1,"p":"37000.50","q":"0.012","T":1700000000000}}`
	tick, ticker, err := decodeMessage([]byte(raw))
	require.NoError(t, err)
	require.Nil(t, ticker)
	require.NotNil(t, tick)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.InDelta(t, 37000.50, tick.Price, 1e-9)
	assert.InDelta(t, 0.012, tick.Quantity, 1e-12)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), tick.Timestamp)
	assert.Equal(t, time.UTC, tick.Timestamp.Location())
}

func TestDecodeRawTicker(t *testing.T) {
	raw := `{"e":"24hrTicker","E":1700000000500,"s":"ethusdt","p":"-12.5","P":"-0.61","c":"2030.1","o":"2042.6","h":"2050","l":"2001.3","v":"1500.25","q":"3050000.75"}`
	tick, ticker, err := decodeMessage([]byte(raw))
	require.NoError(t, err)
	require.Nil(t, tick)
	require.NotNil(t, ticker)
	assert.Equal(t, "ETHUSDT", ticker.Symbol)
	assert.InDelta(t, -12.5, ticker.PriceChange, 1e-9)
	assert.InDelta(t, -0.61, ticker.PriceChangePercent, 1e-9)
	assert.InDelta(t, 2030.1, ticker.LastPrice, 1e-9)
	assert.InDelta(t, 2042.6, ticker.OpenPrice, 1e-9)
	assert.InDelta(t, 2050, ticker.HighPrice, 1e-9)
	assert.InDelta(t, 2001.3, ticker.LowPrice, 1e-9)
	assert.InDelta(t, 1500.25, ticker.Volume, 1e-9)
	assert.InDelta(t, 3050000.75, ticker.QuoteVolume, 1e-6)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{{{`,
		"bad price":     `{"e":"trade","s":"BTCUSDT","p":"abc","q":"1","T":1700000000000}`,
		"missing time":  `{"e":"trade","s":"BTCUSDT","p":"1","q":"1"}`,
		"ticker number": `{"e":"24hrTicker","s":"BTCUSDT","p":"x","P":"1","c":"1","o":"1","h":"1","l":"1","v":"1","q":"1","E":1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := decodeMessage([]byte(raw))
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrIgnored)
		})
	}
}

func TestDecodeIgnoresAcks(t *testing.T) {
	_, _, err := decodeMessage([]byte(`{"result":null,"id":1}`))
	assert.ErrorIs(t, err, ErrIgnored)
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t,
		"wss://fstream.binance.com/stream?streams=btcusdt@trade/btcusdt@ticker",
		StreamURL("wss://fstream.binance.com/", "BTCUSDT"))
}
