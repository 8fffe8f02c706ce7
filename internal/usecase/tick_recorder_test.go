package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	"QuantPulse/pkg/metrics"
)

type memStorage struct {
	ticks  []*models.Tick
	err    error
	closed bool
}

func (m *memStorage) Init(context.Context) error { return nil }
func (m *memStorage) Store(ctx context.Context, t *models.Tick) error {
	return m.StoreBatch(ctx, []*models.Tick{t})
}
func (m *memStorage) StoreBatch(_ context.Context, ticks []*models.Tick) error {
	if m.err != nil {
		return m.err
	}
	m.ticks = append(m.ticks, ticks...)
	return nil
}
func (m *memStorage) Query(_ context.Context, symbol string, _, _ time.Time, _ int) ([]*models.Tick, error) {
	var out []*models.Tick
	for _, t := range m.ticks {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out, nil
}
func (m *memStorage) Health(context.Context) error { return nil }
func (m *memStorage) Close() error                  { m.closed = true; return nil }

type memPublisher struct{ n int }

func (p *memPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.PublishBatch(ctx, []*models.Tick{t})
}
func (p *memPublisher) PublishBatch(_ context.Context, ticks []*models.Tick) error {
	p.n += len(ticks)
	return nil
}
func (p *memPublisher) Close() error { return nil }

func sampleTick(sym string, price float64) *models.Tick {
	return &models.Tick{Symbol: sym, Price: price, Quantity: 1, Timestamp: time.Unix(1700000000, 0).UTC()}
}

func TestTickRecorderRoutesToStorage(t *testing.T) {
	store := &memStorage{}
	r := NewTickRecorder(nil, store, metrics.Nop{}, BackendSQLite)
	require.NoError(t, r.ProcessBatch(context.Background(), []*models.Tick{sampleTick("A", 1), sampleTick("B", 2)}))
	require.NoError(t, r.Process(context.Background(), sampleTick("A", 3)))

	got, err := r.Query(context.Background(), "A", time.Time{}, time.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	r.Close()
	assert.True(t, store.closed)
}

func TestTickRecorderRoutesToKafka(t *testing.T) {
	pub := &memPublisher{}
	r := NewTickRecorder(pub, nil, metrics.Nop{}, BackendKafka)
	require.NoError(t, r.ProcessBatch(context.Background(), []*models.Tick{sampleTick("A", 1)}))
	assert.Equal(t, 1, pub.n)

	_, err := r.Query(context.Background(), "A", time.Time{}, time.Now(), 10)
	assert.ErrorIs(t, err, ErrNotQueryable)
}

func TestTickRecorderNoneAndFailures(t *testing.T) {
	r := NewTickRecorder(nil, nil, metrics.Nop{}, "")
	assert.Equal(t, BackendNone, r.Backend())
	assert.NoError(t, r.ProcessBatch(context.Background(), []*models.Tick{sampleTick("A", 1)}))

	r = NewTickRecorder(nil, &memStorage{err: errors.New("disk full")}, metrics.Nop{}, BackendClickHouse)
	assert.ErrorContains(t, r.ProcessBatch(context.Background(), []*models.Tick{sampleTick("A", 1)}), "disk full")

	r = NewTickRecorder(nil, nil, metrics.Nop{}, BackendKafka)
	assert.Error(t, r.ProcessBatch(context.Background(), []*models.Tick{sampleTick("A", 1)}))

	assert.Error(t, r.Process(context.Background(), nil))
}
