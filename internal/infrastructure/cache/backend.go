// Package cache provides the read-view cache for inventory listings and the
// NOTIFY-driven reload of business rules.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Backend is a byte-oriented key/value store with TTL.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisOptions configures the Redis client.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a client with pool and timeout settings suited to
// a cache: short timeouts, few retries.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		PoolSize:        10,
		MinIdleConns:    2,
		DialTimeout:     2 * time.Second,
		ReadTimeout:     500 * time.Millisecond,
		WriteTimeout:    500 * time.Millisecond,
		MaxRetries:      2,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 128 * time.Millisecond,
	})
}

// RedisBackend stores values in Redis.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Get returns the value or ErrCacheMiss.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores value with ttl.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes keys.
func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// MemoryBackend is a bounded in-process LRU with TTL.
type MemoryBackend struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryBackend creates an LRU holding at most capacity keys.
func NewMemoryBackend(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBackend{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the value or ErrCacheMiss.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if b.now().After(e.expiresAt) {
		b.order.Remove(el)
		delete(b.items, key)
		return nil, ErrCacheMiss
	}
	b.order.MoveToFront(el)
	return e.value, nil
}

// Set stores value with ttl, evicting the least recently used key when full.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	expires := b.now().Add(ttl)
	if el, ok := b.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value = value
		e.expiresAt = expires
		b.order.MoveToFront(el)
		return nil
	}

	for b.order.Len() >= b.capacity {
		oldest := b.order.Back()
		b.order.Remove(oldest)
		delete(b.items, oldest.Value.(*memoryEntry).key)
	}

	b.items[key] = b.order.PushFront(&memoryEntry{key: key, value: value, expiresAt: expires})
	return nil
}

// Delete removes keys.
func (b *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		if el, ok := b.items[key]; ok {
			b.order.Remove(el)
			delete(b.items, key)
		}
	}
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

// NewBackend returns a Redis backend when the server answers a ping and an
// in-process one otherwise.
func NewBackend(ctx context.Context, client *redis.Client, fallbackCapacity int) (Backend, bool) {
	if client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err == nil {
			return NewRedisBackend(client), true
		}
	}
	return NewMemoryBackend(fallbackCapacity), false
}
