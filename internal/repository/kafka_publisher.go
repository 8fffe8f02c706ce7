package repository

import (
	"context"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
	pkgkafka "QuantPulse/pkg/kafka"
)

// tickMessage is the wire shape of a tick on the Kafka topic.
type tickMessage struct {
	Symbol   string  `json:"symbol"`
	TsMillis int64   `json:"ts"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

func newTickMessage(t *models.Tick) pkgkafka.Message {
	return pkgkafka.Message{
		Key: []byte(t.Symbol),
		Value: tickMessage{
			Symbol:   t.Symbol,
			TsMillis: t.Timestamp.UnixMilli(),
			Price:    t.Price,
			Quantity: t.Quantity,
		},
	}
}

// KafkaPublisher implements Publisher for Kafka, keyed by symbol.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

var _ repository.Publisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.PublishBatch(ctx, []*models.Tick{t})
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	msgs := make([]pkgkafka.Message, 0, len(ticks))
	for _, t := range ticks {
		if t != nil {
			msgs = append(msgs, newTickMessage(t))
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
