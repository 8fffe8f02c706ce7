package service

import (
	"context"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
)

// PairAnalyzer computes pair statistics for a "A-B" pair. Failures are
// reported through PairAnalytics.Error, never as a panic.
type PairAnalyzer interface {
	PairAnalytics(ctx context.Context, pair string, tf repository.Timeframe, window int, method string) models.PairAnalytics
}

// PriceSource resolves the most recent traded price of a symbol.
type PriceSource interface {
	LatestPrice(symbol string) (float64, bool)
}

// SeriesSource provides resampled close-price series.
type SeriesSource interface {
	CloseSeries(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.PricePoint, error)
}
