// Copyright (c) Openident.
// Licensed under the MIT license.

package persist

import (
	"context"
	"time"

	"github.com/openident/authentication-library-for-go/apps/cache"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "openident:token-cache"

// RedisAccessor persists the cache as a single Redis value. With
// WithPartitioning the partition key hint is folded into the Redis key so
// multi-tenant hosts keep caches apart; reads without a hint then see only
// the unpartitioned entry.
type RedisAccessor struct {
	client      redis.UniversalClient
	prefix      string
	ttl         time.Duration
	partitioned bool
}

// RedisOption configures a RedisAccessor.
type RedisOption func(*RedisAccessor)

// WithKeyPrefix overrides the default Redis key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisAccessor) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithTTL sets an expiry on the persisted cache. Zero means no expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisAccessor) {
		r.ttl = ttl
	}
}

// WithPartitioning folds the partition key hint into the Redis key.
func WithPartitioning() RedisOption {
	return func(r *RedisAccessor) {
		r.partitioned = true
	}
}

// NewRedisAccessor returns an accessor backed by the given client. The
// client's lifecycle belongs to the caller.
func NewRedisAccessor(client redis.UniversalClient, options ...RedisOption) *RedisAccessor {
	r := &RedisAccessor{client: client, prefix: defaultRedisKey}
	for _, o := range options {
		o(r)
	}
	return r
}

func (r *RedisAccessor) key(partitionKey string) string {
	if !r.partitioned || partitionKey == "" {
		return r.prefix
	}
	return r.prefix + ":" + partitionKey
}

// Replace loads the persisted cache into u. A missing key is not an error.
func (r *RedisAccessor) Replace(ctx context.Context, u cache.Unmarshaler, hints cache.ReplaceHints) error {
	data, err := r.client.Get(ctx, r.key(hints.PartitionKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	return u.Unmarshal(data)
}

// Export writes the cache contents to Redis.
func (r *RedisAccessor) Export(ctx context.Context, m cache.Marshaler, hints cache.ExportHints) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(hints.PartitionKey), data, r.ttl).Err()
}
