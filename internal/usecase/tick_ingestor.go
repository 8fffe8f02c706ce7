package usecase

import (
	"context"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/service/buffer"
	"QuantPulse/pkg/logger"
)

// Broadcaster fans events out to live subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, event any)
}

// TickIngestor receives decoded stream events and forwards them to the
// buffer, the recording sink and the broadcast hub.
type TickIngestor struct {
	buf     *buffer.TickBuffer
	sink    drepo.TickSink
	hub     Broadcaster
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewTickIngestor creates a new TickIngestor. sink, hub and metrics may be nil.
func NewTickIngestor(buf *buffer.TickBuffer, sink drepo.TickSink, hub Broadcaster, metrics drepo.Metrics, log *logger.Logger) *TickIngestor {
	if log == nil {
		log = logger.Nop()
	}
	return &TickIngestor{buf: buf, sink: sink, hub: hub, metrics: metrics, log: log.Component("ingestor")}
}

// HandleTick is the stream client's tick handler. It runs on the symbol's
// read loop, so buffer order matches arrival order.
func (c *TickIngestor) HandleTick(t models.Tick) {
	size := c.buf.AddTick(t)
	if c.metrics != nil {
		c.metrics.RecordTick(t.Symbol)
		c.metrics.RecordLastPrice(t.Symbol, t.Price)
		c.metrics.SetBufferSize(t.Symbol, size)
	}

	if c.sink != nil {
		tc := t
		if !c.sink.Submit(&tc) {
			c.log.Debug("tick not recorded", logger.String("symbol", t.Symbol))
		}
	}
	if c.hub != nil {
		c.hub.Publish(context.Background(), models.NewTradeEvent(t))
	}
}

// HandleTicker forwards 24h ticker snapshots to subscribers.
func (c *TickIngestor) HandleTicker(t models.Ticker) {
	if c.hub != nil {
		c.hub.Publish(context.Background(), models.NewTickerEvent(t))
	}
}
