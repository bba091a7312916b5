package kv

import (
	"context"
	"encoding/json"

	"github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by redis strings.
type RedisStore struct {
	cli *redis.Client
}

// NewRedisStore creates a Store over the given redis options.
func NewRedisStore(opt *redis.Options) *RedisStore {
	return &RedisStore{cli: redis.NewClient(opt)}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return errors.Wrap(s.cli.Close(), "close redis client")
}

func (s *RedisStore) Get(ctx context.Context, key string, value any) (bool, error) {
	raw, err := s.cli.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		return false, errors.Wrapf(err, "get %q", key)
	}

	if err := json.Unmarshal([]byte(raw), value); err != nil {
		return false, errors.Wrapf(err, "unmarshal value at %q", key)
	}

	return true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal value for %q", key)
	}

	if err := s.cli.Set(ctx, key, string(raw), 0).Err(); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.cli.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "del %q", key)
	}

	return nil
}

func (s *RedisStore) ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.cli.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan keys by prefix %q", prefix)
	}

	return keys, nil
}
