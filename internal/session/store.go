// Package session is the server-side replacement for browser session
// storage: a small key-value space per storefront session that expires when
// the session goes idle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the key-value capability the checkout core depends on.
type Store interface {
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	Set(ctx context.Context, sessionID string, values map[string]string) error
	Remove(ctx context.Context, sessionID string, keys ...string) error
}

// RedisStore keeps each session in one hash. Every write refreshes the TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, sessionKey(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session get %s failed: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, sessionID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	key := sessionKey(sessionID)
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, pairs)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, sessionKey(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("session remove failed: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// MemoryStore is the in-process Store used in development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memorySession
}

type memorySession struct {
	values    map[string]string
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memorySession),
	}
}

func (s *MemoryStore) Get(_ context.Context, sessionID, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(sessionID)
	if sess == nil {
		return "", false, nil
	}
	v, ok := sess.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, sessionID string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(sessionID)
	if sess == nil {
		sess = &memorySession{values: make(map[string]string)}
		s.sessions[sessionID] = sess
	}
	for k, v := range values {
		sess.values[k] = v
	}
	sess.expiresAt = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, sessionID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess := s.live(sessionID); sess != nil {
		for _, k := range keys {
			delete(sess.values, k)
		}
	}
	return nil
}

// live returns the session or nil, dropping it if it expired. Caller holds mu.
func (s *MemoryStore) live(sessionID string) *memorySession {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, sessionID)
		return nil
	}
	return sess
}
