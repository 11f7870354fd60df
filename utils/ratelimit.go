package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore хранит счетчики запросов в скользящем окне. Хранилище
// внедряется в RateLimiter, чтобы несколько экземпляров приложения
// могли делить общие лимиты.
type CounterStore interface {
	// Incr увеличивает счетчик и возвращает его значение в пределах окна
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Reset сбрасывает счетчик для ключа
	Reset(ctx context.Context, key string) error
}

// MemoryCounterStore хранит счетчики в памяти процесса
type MemoryCounterStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
}

// NewMemoryCounterStore создает новый MemoryCounterStore
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		requests: make(map[string][]time.Time),
	}
}

// Incr увеличивает счетчик и возвращает число запросов в окне
func (s *MemoryCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-window)

	// Очищаем старые запросы
	if requests, exists := s.requests[key]; exists {
		var validRequests []time.Time
		for _, t := range requests {
			if t.After(windowStart) {
				validRequests = append(validRequests, t)
			}
		}
		s.requests[key] = validRequests
	}

	s.requests[key] = append(s.requests[key], now)
	return int64(len(s.requests[key])), nil
}

// Reset сбрасывает счетчик для ключа
func (s *MemoryCounterStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, key)
	return nil
}

// RedisCounterStore хранит счетчики в Redis, лимиты общие для всех
// экземпляров приложения
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCounterStore создает новый RedisCounterStore
func NewRedisCounterStore(client *redis.Client, prefix string) *RedisCounterStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisCounterStore{client: client, prefix: prefix}
}

// Incr увеличивает счетчик и возвращает число запросов в окне
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := s.prefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// Reset сбрасывает счетчик для ключа
func (s *RedisCounterStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// RateLimiter реализует ограничение частоты запросов
type RateLimiter struct {
	store  CounterStore
	limit  int
	window time.Duration
}

// NewRateLimiter создает новый RateLimiter
func NewRateLimiter(store CounterStore, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
	}
}

// Allow проверяет, разрешен ли запрос. При недоступном хранилище
// запрос пропускается, чтобы лимитер не блокировал работу сервиса.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	count, err := rl.store.Incr(ctx, key, rl.window)
	if err != nil {
		LogError("Ошибка хранилища лимитера: %v", err)
		return true
	}
	return count <= int64(rl.limit)
}

// Reset сбрасывает счетчик для ключа
func (rl *RateLimiter) Reset(ctx context.Context, key string) {
	if err := rl.store.Reset(ctx, key); err != nil {
		LogError("Ошибка сброса лимитера: %v", err)
	}
}
