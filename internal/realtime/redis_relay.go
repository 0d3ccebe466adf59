package realtime

import (
	"context"

	"bloodlink-backend/internal/cache"
)

type redisRelay struct {
	cache   *cache.Cache
	channel string
}

// NewRedisRelay relays events over a Redis pub/sub channel.
func NewRedisRelay(c *cache.Cache, channel string) Relay {
	return &redisRelay{cache: c, channel: channel}
}

func (r *redisRelay) Publish(ctx context.Context, payload []byte) error {
	return r.cache.Publish(ctx, r.channel, payload)
}

func (r *redisRelay) Subscribe(ctx context.Context, handle func([]byte)) error {
	return r.cache.Subscribe(ctx, r.channel, handle)
}
