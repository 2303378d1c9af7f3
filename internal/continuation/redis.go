// internal/continuation/redis.go
package continuation

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel signals are published on
const DefaultChannel = "adscrapexter:continuation"

// RedisEmitter publishes the signal on a pub/sub channel
type RedisEmitter struct {
	client  *redis.Client
	channel string
}

// NewRedisEmitter connects lazily to addr
func NewRedisEmitter(addr, channel string) *RedisEmitter {
	return NewRedisEmitterWithClient(redis.NewClient(&redis.Options{Addr: addr}), channel)
}

// NewRedisEmitterWithClient uses an existing client
func NewRedisEmitterWithClient(client *redis.Client, channel string) *RedisEmitter {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisEmitter{client: client, channel: channel}
}

func (r *RedisEmitter) Emit(ctx context.Context, sig Signal) error {
	payload, err := sig.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *RedisEmitter) Close() error {
	return r.client.Close()
}
