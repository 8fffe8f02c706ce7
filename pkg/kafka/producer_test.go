package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestPublishBatchEncodes(t *testing.T) {
	w := &memWriter{}
	reg := prometheus.NewRegistry()
	p := NewProducerWithWriter(w, "snappy", reg)

	err := p.PublishBatch(context.Background(), "ticks", []Message{
		{Key: []byte("BTC"), Value: map[string]float64{"p": 1}},
		{Key: []byte("ETH"), Value: "raw"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "ticks", w.msgs[0].Topic)
	assert.JSONEq(t, `{"p":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("ticks", "snappy", "ok")))
}

func TestPublishWrapsWriterError(t *testing.T) {
	p := NewProducerWithWriter(&memWriter{err: errors.New("leader not available")}, "snappy", nil)
	err := p.Publish(context.Background(), "ticks", nil, []byte("x"))
	assert.ErrorContains(t, err, "leader not available")
	assert.NoError(t, p.PublishBatch(context.Background(), "ticks", nil))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}
