// Package session is the external "current user" store. A session owns
// the authenticated directory entry and the live digit challenge for the
// attendance screen; the engine itself never keeps ambient identity.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"asistencia/internal/challenge"
	"asistencia/internal/directory"
)

// ErrNotFound means the session expired or was never created.
var ErrNotFound = errors.New("session not found")

// Session is the per-login state. Challenge is replaced after every
// attendance attempt; it is never reused.
type Session struct {
	ID        string              `json:"id"`
	User      directory.User      `json:"user"`
	Challenge challenge.Challenge `json:"challenge"`
	CreatedAt time.Time           `json:"created_at"`
}

// Store persists sessions keyed by their opaque ID.
type Store interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func key(id string) string { return "session:" + id }

func (s *RedisStore) Put(ctx context.Context, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	raw, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("session decode: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, key(id)).Err()
}

// MemoryStore is the in-process fallback used in dev and tests.
type MemoryStore struct {
	ttl time.Duration

	mu   sync.Mutex
	data map[string]memoryEntry
}

type memoryEntry struct {
	sess    Session
	expires time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &MemoryStore{ttl: ttl, data: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sess.ID] = memoryEntry{sess: sess, expires: time.Now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[id]
	if !ok || time.Now().After(e.expires) {
		delete(s.data, id)
		return Session{}, ErrNotFound
	}
	return e.sess, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}
