package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tazhate/medremind/internal/domain"
)

// MemoryStore backs demo mode. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]map[string][]byte
	order map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]map[string][]byte),
		order: make(map[string][]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, collection, id string, dst any) error {
	s.mu.RLock()
	raw, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MemoryStore) Set(_ context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.docs[collection]
	if !ok {
		col = make(map[string][]byte)
		s.docs[collection] = col
	}
	if _, exists := col[id]; !exists {
		s.order[collection] = append(s.order[collection], id)
	}
	col[id] = raw
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.docs[collection], id)
	ids := s.order[collection]
	for i, v := range ids {
		if v == id {
			s.order[collection] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filters ...Filter) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []json.RawMessage
	for _, id := range s.order[collection] {
		raw := s.docs[collection][id]
		ok, err := matches(raw, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			cp := make([]byte, len(raw))
			copy(cp, raw)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
