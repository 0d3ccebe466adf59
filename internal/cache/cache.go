// Package cache wraps Redis for the few cross-instance concerns: job locks
// and the realtime event relay.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bloodlink-backend/internal/logger"
)

type Cache struct {
	client redis.UniversalClient // works with both single and cluster
}

func NewCache(addrs []string, password string, db int) *Cache {
	return NewFromClient(redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: password,
		DB:       db,
	}))
}

func NewFromClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func key(namespace, k string) string {
	return namespace + ":" + k
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// TryLock takes a best-effort distributed lock with SET NX PX. When the lock
// is held elsewhere it returns ok=false and a nil release.
func (c *Cache) TryLock(ctx context.Context, namespace, name string, ttl time.Duration) (release func(), ok bool, err error) {
	k := key(namespace, name)
	token := uuid.NewString()

	logger.ExternalServiceCall("redis", "SETNX", "key", k)
	ok, err = c.client.SetNX(ctx, k, token, ttl).Result()
	logger.ExternalServiceResult("redis", "SETNX", err, "key", k, "acquired", ok)
	if err != nil || !ok {
		return nil, false, err
	}

	release = func() {
		// The caller's ctx may already be done when the job finishes.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, c.client, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			logger.Warn("Failed to release redis lock", "key", k, "error", err)
		}
	}
	return release, true, nil
}

func (c *Cache) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.client.Publish(ctx, channel, payload).Err()
}

// Subscribe delivers every message on channel to handle until ctx is done.
func (c *Cache) Subscribe(ctx context.Context, channel string, handle func([]byte)) error {
	sub := c.client.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting success.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	logger.Info("Subscribed to redis channel", "channel", channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle([]byte(msg.Payload))
		}
	}
}
