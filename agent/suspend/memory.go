package suspend

import (
	"context"
	"fmt"
	"sync"

	contractx "github.com/zapflow/zapflow/agent/contract"
)

// MemoryStore is a mutex-guarded in-process Store for single-instance
// deployments and tests. Records never expire.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Put(_ context.Context, token string, rec Record) error {
	if token == "" {
		return ErrInvalidToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[token] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (*Record, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[token]
	if !ok {
		return nil, fmt.Errorf("%w: token=%s", contractx.ErrContextNotFound, token)
	}
	return &rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, token)
	return nil
}
