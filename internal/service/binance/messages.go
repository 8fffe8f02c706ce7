package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"QuantPulse/internal/domain/models"
)

// ErrIgnored marks frames that are well formed but carry no market event
// (subscription acks, unknown event types).
var ErrIgnored = errors.New("binance: ignored frame")

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type eventHeader struct {
	Event string `json:"e"`
}

type tradeMsg struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

type tickerMsg struct {
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	LastPrice          string `json:"c"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	EventTime          int64  `json:"E"`
}

// decodeMessage parses a raw or combined-stream frame into either a tick or a
// ticker. Exactly one of the returned pointers is non-nil when err is nil.
func decodeMessage(b []byte) (*models.Tick, *models.Ticker, error) {
	payload := json.RawMessage(b)
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, nil, fmt.Errorf("decode frame: %w", err)
	}
	if len(env.Data) > 0 {
		payload = env.Data
	}

	var h eventHeader
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, nil, fmt.Errorf("decode event header: %w", err)
	}

	switch h.Event {
	case "trade", "aggTrade":
		t, err := decodeTrade(payload)
		return t, nil, err
	case "24hrTicker":
		t, err := decodeTicker(payload)
		return nil, t, err
	default:
		return nil, nil, ErrIgnored
	}
}

func decodeTrade(b []byte) (*models.Tick, error) {
	var m tradeMsg
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	if m.Symbol == "" || m.TradeTime <= 0 {
		return nil, fmt.Errorf("decode trade: missing symbol or time")
	}
	price, err := parseNumber("p", m.Price)
	if err != nil {
		return nil, err
	}
	qty, err := parseNumber("q", m.Quantity)
	if err != nil {
		return nil, err
	}
	return &models.Tick{
		Symbol:    strings.ToUpper(m.Symbol),
		Price:     price,
		Quantity:  qty,
		Timestamp: time.UnixMilli(m.TradeTime).UTC(),
	}, nil
}

func decodeTicker(b []byte) (*models.Ticker, error) {
	var m tickerMsg
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	if m.Symbol == "" {
		return nil, fmt.Errorf("decode ticker: missing symbol")
	}
	t := &models.Ticker{
		Symbol:    strings.ToUpper(m.Symbol),
		Timestamp: time.UnixMilli(m.EventTime).UTC(),
	}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"p", m.PriceChange, &t.PriceChange},
		{"P", m.PriceChangePercent, &t.PriceChangePercent},
		{"c", m.LastPrice, &t.LastPrice},
		{"o", m.OpenPrice, &t.OpenPrice},
		{"h", m.HighPrice, &t.HighPrice},
		{"l", m.LowPrice, &t.LowPrice},
		{"v", m.Volume, &t.Volume},
		{"q", m.QuoteVolume, &t.QuoteVolume},
	}
	for _, f := range fields {
		v, err := parseNumber(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return t, nil
}

func parseNumber(field, raw string) (float64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return d.InexactFloat64(), nil
}

// StreamURL builds the combined trade + ticker stream address for symbol.
func StreamURL(base, symbol string) string {
	s := strings.ToLower(symbol)
	return fmt.Sprintf("%s/stream?streams=%s@trade/%s@ticker", strings.TrimRight(base, "/"), s, s)
}
