package memory

import (
	"context"
	"sync"
	"time"
)

const processingMarker = "processing"

type idempotencyRecord struct {
	value     []byte
	expiresAt time.Time
}

// IdempotencyStore keeps idempotency keys in process memory for
// deployments without Redis.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]idempotencyRecord
	now  func() time.Time
}

// NewIdempotencyStore creates an empty IdempotencyStore.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		keys: make(map[string]idempotencyRecord),
		now:  time.Now,
	}
}

// CheckAndSet claims key, or returns what is stored under it.
func (s *IdempotencyStore) CheckAndSet(_ context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.keys[key]; ok && now.Before(rec.expiresAt) {
		return true, rec.value, nil
	}

	value := response
	if value == nil {
		value = []byte(processingMarker)
	}
	s.keys[key] = idempotencyRecord{value: value, expiresAt: now.Add(ttl)}
	return false, nil, nil
}

// Update stores the final response for key.
func (s *IdempotencyStore) Update(_ context.Context, key string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = idempotencyRecord{value: response, expiresAt: s.now().Add(ttl)}
	return nil
}

// Release removes key.
func (s *IdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

// Purge drops expired keys.
func (s *IdempotencyStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, rec := range s.keys {
		if !now.Before(rec.expiresAt) {
			delete(s.keys, k)
			n++
		}
	}
	return n
}
