package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cache:"

// Redis is a Store backed by Redis. Tags are Redis sets of member keys.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed cache store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the cached value or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

// Set stores value under key for ttl.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SetTagged stores value and adds key to the tag set in one pipeline.
func (r *Redis) SetTagged(ctx context.Context, tag, key string, value []byte, ttl time.Duration) error {
	tagKey := keyPrefix + tag
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyPrefix+key, value, ttl)
		p.SAdd(ctx, tagKey, key)
		// the tag set outlives its members by one ttl so late writers still get swept
		p.Expire(ctx, tagKey, 2*ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set tagged: %w", err)
	}
	return nil
}

// InvalidateTag drops every key recorded under tag, then the tag itself.
func (r *Redis) InvalidateTag(ctx context.Context, tag string) error {
	tagKey := keyPrefix + tag
	members, err := r.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, keyPrefix+m)
	}
	keys = append(keys, tagKey)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del tagged: %w", err)
	}
	return nil
}
