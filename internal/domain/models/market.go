package models

import "time"

// Tick is a single trade print for one symbol.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticker is a rolling 24h statistics snapshot for one symbol.
type Ticker struct {
	Symbol             string    `json:"symbol"`
	PriceChange        float64   `json:"priceChange"`
	PriceChangePercent float64   `json:"priceChangePercent"`
	LastPrice          float64   `json:"lastPrice"`
	OpenPrice          float64   `json:"openPrice"`
	HighPrice          float64   `json:"highPrice"`
	LowPrice           float64   `json:"lowPrice"`
	Volume             float64   `json:"volume"`
	QuoteVolume        float64   `json:"quoteVolume"`
	Timestamp          time.Time `json:"timestamp"`
}

// Candle is an OHLCV aggregate; Timestamp is the bucket start.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PricePoint is one element of a close-price series.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
}

// MetricPoint is the common shape of every derived pair series.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// BufferStats summarises the buffered state of one symbol.
type BufferStats struct {
	Symbol      string     `json:"symbol"`
	TickCount   int64      `json:"tick_count"`
	BufferSize  int        `json:"buffer_size"`
	LastTick    *time.Time `json:"last_tick_time,omitempty"`
	LatestPrice *float64   `json:"latest_price,omitempty"`
}
