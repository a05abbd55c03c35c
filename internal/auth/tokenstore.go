package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps one-time link tokens and revoked session ids
type TokenStore interface {
	PutLink(ctx context.Context, hash, userID string, ttl time.Duration) error
	// TakeLink returns the user id and deletes the entry, ErrTokenNotFound when absent or expired
	TakeLink(ctx context.Context, hash string) (string, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryTokenStore is a TokenStore for single-instance deployments
type MemoryTokenStore struct {
	mu      sync.Mutex
	links   map[string]memoryEntry
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryTokenStore(now func() time.Time) *MemoryTokenStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryTokenStore{
		links:   make(map[string]memoryEntry),
		revoked: make(map[string]time.Time),
		now:     now,
	}
}

func (s *MemoryTokenStore) PutLink(_ context.Context, hash, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[hash] = memoryEntry{value: userID, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) TakeLink(_ context.Context, hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.links[hash]
	delete(s.links, hash)
	if !ok || !s.now().Before(entry.expires) {
		return "", ErrTokenNotFound
	}
	return entry.value, nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = s.now().Add(ttl)
	return nil
}

func (s *MemoryTokenStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

// Cleanup drops expired entries
func (s *MemoryTokenStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for hash, entry := range s.links {
		if !now.Before(entry.expires) {
			delete(s.links, hash)
		}
	}
	for id, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, id)
		}
	}
}

// RedisTokenStore shares tokens between service instances
// FUNCTIONAL DISCOVERY: GETDEL makes redemption atomic, two concurrent callbacks
// with the same link cannot both succeed
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: "connected:"}
}

func (s *RedisTokenStore) linkKey(hash string) string { return s.prefix + "link:" + hash }
func (s *RedisTokenStore) revokedKey(id string) string { return s.prefix + "revoked:" + id }

func (s *RedisTokenStore) PutLink(ctx context.Context, hash, userID string, ttl time.Duration) error {
	return s.client.Set(ctx, s.linkKey(hash), userID, ttl).Err()
}

func (s *RedisTokenStore) TakeLink(ctx context.Context, hash string) (string, error) {
	value, err := s.client.GetDel(ctx, s.linkKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *RedisTokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.revokedKey(tokenID), "1", ttl).Err()
}

func (s *RedisTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
