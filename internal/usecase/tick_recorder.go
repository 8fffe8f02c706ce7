package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
)

// Recording backends.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendSQLite     = "sqlite"
)

// ErrNotQueryable is returned by Query when the backend cannot read ticks
// back.
var ErrNotQueryable = errors.New("backend is not queryable")

// TickRecorder routes recorded ticks to the configured backend.
type TickRecorder struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewTickRecorder creates a recorder. store serves both the clickhouse and
// sqlite backends; pub serves kafka.
func NewTickRecorder(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *TickRecorder {
	if backend == "" {
		backend = BackendNone
	}
	return &TickRecorder{pub: pub, store: store, metrics: metrics, backend: backend}
}

func (p *TickRecorder) Backend() string { return p.backend }

// Process records a single tick.
func (p *TickRecorder) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}
	return p.ProcessBatch(ctx, []*models.Tick{t})
}

// ProcessBatch records ticks in one backend call.
func (p *TickRecorder) ProcessBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 || p.backend == BackendNone {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		if p.pub == nil {
			return fmt.Errorf("kafka publisher not configured")
		}
		err = p.pub.PublishBatch(ctx, ticks)
	case BackendClickHouse, BackendSQLite:
		if p.store == nil {
			return fmt.Errorf("%s storage not configured", p.backend)
		}
		err = p.store.StoreBatch(ctx, ticks)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("record_batch")
		return fmt.Errorf("record batch: %w", err)
	}

	p.metrics.RecordStored(p.backend, len(ticks))
	p.metrics.RecordLatency("record_batch", time.Since(start).Seconds())
	return nil
}

// Query reads recorded ticks back from the storage backend.
func (p *TickRecorder) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	if p.store == nil || (p.backend != BackendClickHouse && p.backend != BackendSQLite) {
		return nil, fmt.Errorf("%w: %s", ErrNotQueryable, p.backend)
	}
	return p.store.Query(ctx, symbol, from, to, limit)
}

// Health pings the storage backend. Backends without storage are always
// healthy.
func (p *TickRecorder) Health(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	return p.store.Health(ctx)
}

// Close closes underlying resources if available.
func (p *TickRecorder) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
