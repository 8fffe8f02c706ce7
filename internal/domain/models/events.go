package models

import "time"

// Event types pushed to broadcast subscribers.
const (
	EventTrade  = "trade"
	EventTicker = "ticker"
	EventAlert  = "alert"
)

type TradeEvent struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Qty       float64   `json:"qty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTradeEvent(t Tick) TradeEvent {
	return TradeEvent{Type: EventTrade, Symbol: t.Symbol, Price: t.Price, Qty: t.Quantity, Timestamp: t.Timestamp}
}

type TickerEvent struct {
	Type               string    `json:"type"`
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

func NewTickerEvent(t Ticker) TickerEvent {
	return TickerEvent{
		Type:               EventTicker,
		Symbol:             t.Symbol,
		PriceChange:        t.PriceChange,
		PriceChangePercent: t.PriceChangePercent,
		LastPrice:          t.LastPrice,
		OpenPrice:          t.OpenPrice,
		HighPrice:          t.HighPrice,
		LowPrice:           t.LowPrice,
		Volume:             t.Volume,
		QuoteVolume:        t.QuoteVolume,
		Timestamp:          t.Timestamp,
	}
}

type AlertEvent struct {
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	RuleID         string    `json:"ruleId"`
	Message        string    `json:"message"`
	Metric         string    `json:"metric"`
	Pair           string    `json:"pair"`
	ActualValue    float64   `json:"actualValue"`
	ThresholdValue float64   `json:"thresholdValue"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewAlertEvent(n AlertNotification) AlertEvent {
	return AlertEvent{
		Type:           EventAlert,
		ID:             n.ID,
		RuleID:         n.RuleID,
		Message:        n.Message,
		Metric:         string(n.Metric),
		Pair:           n.Pair,
		ActualValue:    n.ActualValue,
		ThresholdValue: n.ThresholdValue,
		Timestamp:      n.Timestamp,
	}
}
