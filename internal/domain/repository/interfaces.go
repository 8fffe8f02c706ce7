package repository

import (
	"context"
	"time"

	"QuantPulse/internal/domain/models"
)

// Publisher streams ticks to a downstream broker.
type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

// Storage is a time-indexed append/query store of ticks.
type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// TickSink accepts ticks for best-effort durable recording. Submit must
// never block the caller.
type TickSink interface {
	Submit(t *models.Tick) bool
}

type Metrics interface {
	RecordTick(symbol string)
	RecordStored(backend string, n int)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordReconnect(symbol string)
	SetConnectionState(symbol string, state int)
	RecordAlertTriggered(metric string)
	SetBufferSize(symbol string, n int)
}
