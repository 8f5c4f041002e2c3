package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier mirrors cache entries into Redis under a key prefix
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier creates a Redis tier from a redis:// URL. The connection is
// lazy; an unreachable server only shows up as tier errors and Ready=false.
func NewRedisTier(url, prefix string) (*RedisTier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = 1

	return NewRedisTierWithClient(redis.NewClient(opts), prefix), nil
}

// NewRedisTierWithClient wraps an existing client
func NewRedisTierWithClient(client *redis.Client, prefix string) *RedisTier {
	return &RedisTier{client: client, prefix: prefix}
}

func (t *RedisTier) Kind() string  { return "redis" }
func (t *RedisTier) Enabled() bool { return true }

func (t *RedisTier) namespaced(key string) string {
	if t.prefix == "" {
		return key
	}
	return t.prefix + ":" + key
}

func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := t.client.Get(ctx, t.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (t *RedisTier) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return t.client.Set(ctx, t.namespaced(key), payload, ttl).Err()
}

func (t *RedisTier) Delete(ctx context.Context, key string) error {
	return t.client.Del(ctx, t.namespaced(key)).Err()
}

func (t *RedisTier) Ready(ctx context.Context) bool {
	return t.client.Ping(ctx).Err() == nil
}

func (t *RedisTier) Close() error {
	return t.client.Close()
}
