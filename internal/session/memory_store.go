package session

import (
	"context"
	"sync"

	"rememberme/api/internal/auth"
)

// MemoryStore keeps claims in process. It is used when no Redis is
// configured.
type MemoryStore struct {
	mu     sync.RWMutex
	claims map[string]auth.CustomClaims
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claims: make(map[string]auth.CustomClaims)}
}

func (s *MemoryStore) SaveClaims(_ context.Context, uid string, claims auth.CustomClaims) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[uid] = claims
	return nil
}

func (s *MemoryStore) LookupClaims(_ context.Context, uid string) (auth.CustomClaims, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claims, ok := s.claims[uid]
	return claims, ok, nil
}

func (s *MemoryStore) DeleteClaims(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, uid)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
