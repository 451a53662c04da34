package redis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Zereker/docstore/pkg/kv"
)

const defaultScanCount = 100

var _ kv.Backend = (*Backend)(nil)

// Backend implements kv.Backend on top of a go-redis client.
type Backend struct {
	client    redis.UniversalClient
	scanCount int64
}

// NewBackend wraps client. scanCount <= 0 selects the default SCAN hint.
func NewBackend(client redis.UniversalClient, scanCount int64) *Backend {
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	return &Backend{client: client, scanCount: scanCount}
}

func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	v, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", kv.ErrNil
	}
	if err != nil {
		return "", wrap(err, "redis get %s", key)
	}
	return v, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := b.client.Set(ctx, key, value, 0).Err(); err != nil {
		return wrap(err, "redis set %s", key)
	}
	return nil
}

func (b *Backend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap(err, "redis hgetall %s", key)
	}
	return fields, nil
}

func (b *Backend) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	if err := b.client.HSet(ctx, key, values).Err(); err != nil {
		return wrap(err, "redis hset %s", key)
	}
	return nil
}

func (b *Backend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return wrap(err, "redis del %v", keys)
	}
	return nil
}

func (b *Backend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
		return wrap(err, "redis expire %s", key)
	}
	return nil
}

func (b *Backend) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := b.client.SAdd(ctx, key, toAny(members)...).Err(); err != nil {
		return wrap(err, "redis sadd %s", key)
	}
	return nil
}

func (b *Backend) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := b.client.SRem(ctx, key, toAny(members)...).Err(); err != nil {
		return wrap(err, "redis srem %s", key)
	}
	return nil
}

func (b *Backend) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := b.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrap(err, "redis smembers %s", key)
	}
	return members, nil
}

func (b *Backend) SInter(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return []string{}, nil
	}
	members, err := b.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, wrap(err, "redis sinter %v", keys)
	}
	return members, nil
}

// Keys walks the keyspace with SCAN so large databases are not blocked the
// way KEYS would block them. SCAN may return a key more than once.
func (b *Backend) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	keys := make([]string, 0)

	iter := b.client.Scan(ctx, 0, pattern, b.scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, wrap(err, "redis scan %s", pattern)
	}
	return keys, nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

// wrap annotates err and maps WRONGTYPE replies onto kv.ErrWrongType.
func wrap(err error, format string, args ...any) error {
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return errors.Wrapf(kv.ErrWrongType, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
