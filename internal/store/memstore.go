package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-process schemas.KVStore for runs without a configured
// database. Contents do not survive the process.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]json.RawMessage)}
}

func (m *MemStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	cp := make(json.RawMessage, len(value))
	copy(cp, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = cp
	return nil
}

func (m *MemStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]json.RawMessage)
	return nil
}
