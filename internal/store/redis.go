package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const maxFailures = 3

// RedisStore persists state in Redis with graceful degradation. After three
// consecutive failures the store reports unhealthy and operations return
// errors immediately until a successful ping closes the breaker again.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// NewRedisStore connects to Redis. A failed initial ping returns the store
// in degraded mode rather than an error so the engine can start without
// persistence and recover later.
func NewRedisStore(cfg RedisConfig, logger zerolog.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &RedisStore{
		client: client,
		logger: logger.With().Str("component", "store").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Str("address", cfg.Address).
			Msg("redis unavailable, starting in degraded mode")
		return s
	}

	s.healthy = true
	s.logger.Info().Str("address", cfg.Address).Msg("redis connected")
	return s
}

func (s *RedisStore) isHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *RedisStore) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= maxFailures && s.healthy {
		s.logger.Warn().Int("failures", s.failureCount).Msg("redis marked unhealthy")
		s.healthy = false
	}
}

func (s *RedisStore) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		s.logger.Info().Msg("redis recovered")
	}
	s.healthy = true
	s.failureCount = 0
}

func (s *RedisStore) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !s.isHealthy() {
		return errors.New("store: redis unavailable")
	}

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		s.recordFailure()
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	s.recordSuccess()

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetJSON(ctx context.Context, key string, value interface{}) error {
	if !s.isHealthy() {
		return errors.New("store: redis unavailable")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	s.recordSuccess()
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if !s.isHealthy() {
		return errors.New("store: redis unavailable")
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	s.recordSuccess()
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.recordFailure()
		return err
	}
	s.recordSuccess()
	return nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
