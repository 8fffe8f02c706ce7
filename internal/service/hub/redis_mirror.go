package hub

import (
	"context"

	"github.com/redis/go-redis/v9"

	"QuantPulse/pkg/logger"
)

// RedisMirror republishes every event on a Redis pub/sub channel so other
// processes can follow the live feed. Publish failures are logged and do
// not unregister the mirror.
type RedisMirror struct {
	cli     *redis.Client
	channel string
	log     *logger.Logger
}

func NewRedisMirror(cli *redis.Client, channel string, log *logger.Logger) *RedisMirror {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisMirror{cli: cli, channel: channel, log: log}
}

func (m *RedisMirror) ID() string { return "redis:" + m.channel }

func (m *RedisMirror) Send(ctx context.Context, msg []byte) error {
	if err := m.cli.Publish(ctx, m.channel, msg).Err(); err != nil {
		m.log.Warn("redis mirror publish failed", logger.String("channel", m.channel), logger.Error(err))
	}
	return nil
}

// Close leaves the shared client open; its owner closes it.
func (m *RedisMirror) Close() error { return nil }
