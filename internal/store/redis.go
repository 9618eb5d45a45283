package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore is an AtomicStore backed by Redis. It is intended for
// deployments where several browserd processes coordinate over shared
// pool/queue state; version checks run inside WATCH transactions so the
// compare-and-swap semantics match the in-process critical section.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the prefix prepended to every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "browserd",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) dataKey(key string) string { return s.prefix + ":" + key }
func (s *RedisStore) verKey(key string) string  { return s.prefix + ":ver:" + key }

// Save persists data with the given key and bumps its version.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.dataKey(key), data, 0)
	pipe.Incr(ctx, s.verKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save %q: %w", key, err)
	}
	return nil
}

// Load retrieves data for the given key.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the data associated with the given key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, s.dataKey(key))
	pipe.Del(ctx, s.verKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete %q: %w", key, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all keys matching the given prefix.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.dataKey(prefix) + "*"
	strip := s.prefix + ":"

	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), strip)
		if strings.HasPrefix(k, "ver:") {
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", pattern, err)
	}
	return keys, nil
}

// Exists checks if a key exists without loading its data.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.dataKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %q: %w", key, err)
	}
	return n > 0, nil
}

// SaveIfNotExists saves data only if the key does not already exist.
func (s *RedisStore) SaveIfNotExists(ctx context.Context, key string, data []byte) error {
	ok, err := s.rdb.SetNX(ctx, s.dataKey(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %q: %w", key, err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	if err := s.rdb.Set(ctx, s.verKey(key), 1, 0).Err(); err != nil {
		return fmt.Errorf("redis set version %q: %w", key, err)
	}
	return nil
}

// SaveWithVersion saves data with optimistic concurrency control. The
// version comparison and write run inside a WATCH transaction; a racing
// writer aborts the transaction and surfaces as ErrStaleData.
func (s *RedisStore) SaveWithVersion(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	var newVersion int64

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, s.verKey(key)).Int64()
		if err == redis.Nil {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expectedVersion {
			return ErrStaleData
		}
		newVersion = current + 1

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.dataKey(key), data, 0)
			pipe.Set(ctx, s.verKey(key), newVersion, 0)
			return nil
		})
		return err
	}

	err := s.rdb.Watch(ctx, txn, s.verKey(key))
	if err == redis.TxFailedErr {
		return 0, ErrStaleData
	}
	if err != nil {
		if err == ErrStaleData {
			return 0, ErrStaleData
		}
		return 0, fmt.Errorf("redis versioned save %q: %w", key, err)
	}
	return newVersion, nil
}

// LoadWithVersion retrieves data together with its current version.
func (s *RedisStore) LoadWithVersion(ctx context.Context, key string) ([]byte, int64, error) {
	pipe := s.rdb.Pipeline()
	dataCmd := pipe.Get(ctx, s.dataKey(key))
	verCmd := pipe.Get(ctx, s.verKey(key))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, 0, fmt.Errorf("redis load %q: %w", key, err)
	}

	data, err := dataCmd.Bytes()
	if err == redis.Nil {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis load %q: %w", key, err)
	}

	version, err := verCmd.Int64()
	if err == redis.Nil {
		version = 0
	} else if err != nil {
		return nil, 0, fmt.Errorf("redis load version %q: %w", key, err)
	}
	return data, version, nil
}

// Compile-time interface checks.
var (
	_ Store       = (*RedisStore)(nil)
	_ AtomicStore = (*RedisStore)(nil)
	_ Store       = (*MemoryStore)(nil)
	_ AtomicStore = (*MemoryStore)(nil)
)
