package models

// Requests for the HTTP endpoints. Query names follow the public API.

type TicksRequest struct {
	Symbol string `param:"symbol" validate:"required"`
	Limit  int    `query:"limit" default:"1000" validate:"gte=1,lte=100000"`
	From   string `query:"from"`
	To     string `query:"to"`
}

type OHLCVRequest struct {
	Symbol  string `param:"symbol" validate:"required"`
	TF      string `query:"tf" default:"1m"`
	Limit   int    `query:"limit" default:"100" validate:"gte=1,lte=100000"`
	From    string `query:"from"`
	To      string `query:"to"`
	Refresh bool   `query:"refresh"`
}

type SymbolQuery struct {
	Symbol string `query:"symbol"`
}

// PairAnalyticsRequest is shared by every /analytics endpoint.
type PairAnalyticsRequest struct {
	Pair       string `query:"pair" validate:"required"`
	TF         string `query:"tf"`
	Window     int    `query:"window" validate:"gte=2,lte=100000"`
	Regression string `query:"regression"`
}

type LatestAnalyticsRequest struct {
	Pair string `query:"pair" validate:"required"`
}

type CreateAlertRequest struct {
	Metric   string  `json:"metric" validate:"required"`
	Pair     string  `json:"pair" validate:"required"`
	Operator string  `json:"op" validate:"required"`
	Value    float64 `json:"value"`
}

type AlertIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type SetAlertActiveRequest struct {
	ID     string `param:"id" validate:"required"`
	Active *bool  `json:"active" validate:"required"`
}

type TriggeredAlertsRequest struct {
	Limit int `query:"limit" validate:"gte=0,lte=100000"`
}

type StreamRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
}

type StoredTicksRequest struct {
	Symbol string `param:"symbol" validate:"required"`
	Limit  int    `query:"limit" default:"1000" validate:"gte=1,lte=100000"`
	From   string `query:"from"`
	To     string `query:"to"`
}
