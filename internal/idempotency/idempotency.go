// Package idempotency deduplicates mutating requests carrying an
// X-Idempotency-Key header. A replay with the same body returns the stored
// response; a replay with a different body is a CONFLICT.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digiurban/lifecycle/model"
)

// Response is the cached outcome of a request.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Store keeps responses keyed by idempotency key.
type Store interface {
	// Lookup returns the stored response for key. found is true whenever the
	// key exists; a body hash mismatch yields a CONFLICT error.
	Lookup(ctx context.Context, key, bodyHash string) (resp *Response, found bool, err error)

	// Save records resp under key for ttl.
	Save(ctx context.Context, key, bodyHash string, resp Response, ttl time.Duration) error
}

type record struct {
	BodyHash string   `json:"body_hash"`
	Response Response `json:"response"`
}

// Key builds the storage key. Keys are scoped per subject and route so two
// callers can never replay each other's responses.
func Key(subjectID, route, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", subjectID, route, key)
}

// HashBody returns the hex SHA-256 of a request body.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func reusedKey(key string) error {
	return model.NewConflictError(fmt.Sprintf("idempotency key %q already used with a different body", key))
}

// --- MemoryStore ---

// MemoryStore is an in-process Store with lazy expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	rec       record
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, key, bodyHash string) (*Response, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	if e.rec.BodyHash != bodyHash {
		return nil, true, reusedKey(key)
	}
	resp := e.rec.Response
	return &resp, true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, key, bodyHash string, resp Response, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{
		rec:       record{BodyHash: bodyHash, Response: resp},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisStore ---

// RedisStore keeps responses in Redis with native TTLs.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, key, bodyHash string) (*Response, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode idempotency record %q: %w", key, err)
	}
	if rec.BodyHash != bodyHash {
		return nil, true, reusedKey(key)
	}
	return &rec.Response, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key, bodyHash string, resp Response, ttl time.Duration) error {
	data, err := json.Marshal(record{BodyHash: bodyHash, Response: resp})
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
