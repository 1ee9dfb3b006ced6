package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces run cache keys.
const keyPrefix = "rewardboard:series:"

// RedisStore implements Store on Redis so several dashboard replicas share one
// run cache. Entries expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis and returns a store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: entry expiration (0 uses the default of 30 minutes)
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	if ttl == 0 {
		ttl = 30 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

func redisKey(run string) string {
	return keyPrefix + run
}

// Put stores entry with TTL-based expiration under "rewardboard:series:{run}".
func (r *RedisStore) Put(ctx context.Context, entry Entry) error {
	if err := ValidateRun(entry.Run); err != nil {
		return err
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	client, err := r.conn()
	if err != nil {
		return err
	}
	if err := client.Set(ctx, redisKey(entry.Run), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store entry in redis: %w", err)
	}

	return nil
}

// Get retrieves the cached entry for run.
func (r *RedisStore) Get(ctx context.Context, run string) (Entry, bool, error) {
	if err := ValidateRun(run); err != nil {
		return Entry{}, false, err
	}

	client, err := r.conn()
	if err != nil {
		return Entry{}, false, err
	}

	data, err := client.Get(ctx, redisKey(run)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to get entry from redis: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return entry, true, nil
}

func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, errors.New("redis store is closed")
	}
	return r.client, nil
}

// Close closes the Redis client connection. It is safe to call multiple times.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}
