package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
)

var ErrSessionNotFound = errors.New("import session not found")

const sessionKeyPrefix = "dshome:import:session:"

func sessionKey(tenantID, id string) string {
	return fmt.Sprintf("%s%s:%s", sessionKeyPrefix, tenantID, id)
}

// RedisSessionStore keeps wizard sessions in redis as JSON. Every save
// refreshes the TTL, so idle sessions expire on their own.
type RedisSessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{redis: client, ttl: ttl}
}

func (s *RedisSessionStore) Get(ctx context.Context, tenantID, id string) (*mapping.Session, error) {
	val, err := s.redis.Get(ctx, sessionKey(tenantID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session mapping.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session *mapping.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.redis.Set(ctx, sessionKey(session.TenantID, session.ID), data, s.ttl).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, tenantID, id string) error {
	n, err := s.redis.Del(ctx, sessionKey(tenantID, id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Sweep is a no-op; redis expires sessions itself
func (s *RedisSessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionStore is the single-instance fallback when redis is not
// configured. Sessions are stored encoded so callers never share state.
type MemorySessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemorySessionStore) Get(ctx context.Context, tenantID, id string) (*mapping.Session, error) {
	s.mu.Lock()
	entry, ok := s.entries[sessionKey(tenantID, id)]
	s.mu.Unlock()
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}

	var session mapping.Session
	if err := json.Unmarshal(entry.data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &session, nil
}

func (s *MemorySessionStore) Save(ctx context.Context, session *mapping.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionKey(session.TenantID, session.ID)] = memoryEntry{
		data:      data,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(tenantID, id)
	if _, ok := s.entries[key]; !ok {
		return ErrSessionNotFound
	}
	delete(s.entries, key)
	return nil
}

// Sweep drops every session that expired before now
func (s *MemorySessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemorySessionStore) Ping(ctx context.Context) error {
	return nil
}
