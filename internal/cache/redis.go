package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries and locks in Redis. It satisfies both Store and
// LockStore.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ticketq"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: redis ping: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// EntryKey returns the redis key holding the entry for key.
func (s *RedisStore) EntryKey(key string) string {
	return fmt.Sprintf("%s:entry:%s", s.prefix, key)
}

// LockKey returns the redis key holding the named lock.
func (s *RedisStore) LockKey(name string) string {
	return fmt.Sprintf("%s:lock:%s", s.prefix, name)
}

// Get loads the entry for key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.EntryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}

	entry := new(Entry)
	if err := unmarshal(data, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Set replaces the entry. A single SET is atomic for readers.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	data, err := marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.EntryKey(entry.Key), data, 0).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// AcquireLock stores the lock with SET NX.
func (s *RedisStore) AcquireLock(ctx context.Context, lock Lock) error {
	data, err := marshal(lock)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.LockKey(lock.Name), data, 0).Result()
	if err != nil {
		return fmt.Errorf("cache: redis setnx: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// ReadLock returns the named lock.
func (s *RedisStore) ReadLock(ctx context.Context, name string) (*Lock, error) {
	data, err := s.client.Get(ctx, s.LockKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: redis get lock: %w", err)
	}

	lock := new(Lock)
	if err := unmarshal(data, lock); err != nil {
		return nil, err
	}
	return lock, nil
}

// ReleaseLock deletes the named lock if owner still holds it. The key is
// watched, so a lock replaced between the read and the delete is left alone.
func (s *RedisStore) ReleaseLock(ctx context.Context, name, owner string) error {
	key := s.LockKey(name)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}

		held := new(Lock)
		if err := unmarshal(data, held); err != nil {
			return err
		}
		if held.Owner != owner {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("cache: redis del lock: %w", err)
	}
	return nil
}
