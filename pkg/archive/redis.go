package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps archive entries in Redis. Entries never expire.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("archive entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		ArchiveErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal archive entry: %w", err)
	}

	if err := s.redis.Set(ctx, entry.Key, data, 0).Err(); err != nil {
		ArchiveErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	ArchiveWrites.WithLabelValues("redis", entry.Outcome()).Inc()
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			ArchiveMisses.Inc()
			return nil, ErrNotArchived
		}
		ArchiveErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		ArchiveErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	ArchiveHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
