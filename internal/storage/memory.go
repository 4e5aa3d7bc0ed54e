package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and by integration-style
// wiring that does not need durability. It honors the full Table contract,
// including corruption reporting for records injected via PutRaw.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*MemoryTable
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*MemoryTable)}
}

// Table returns the named table, creating it on first open.
func (s *MemoryStore) Table(name string) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	t := &MemoryTable{name: name, records: make(map[string][]byte)}
	s.tables[name] = t
	return t, nil
}

// Ping always succeeds; the store lives in process memory.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close discards all tables.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]*MemoryTable)
	return nil
}

// MemoryTable is the map-backed Table behind MemoryStore.
type MemoryTable struct {
	name    string
	mu      sync.RWMutex
	records map[string][]byte
}

func (t *MemoryTable) Put(ctx context.Context, id string, record any) error {
	if id == "" {
		return fmt.Errorf("empty id")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record for table %s: %w", t.name, err)
	}
	t.mu.Lock()
	t.records[id] = raw
	t.mu.Unlock()
	return nil
}

// PutRaw stores bytes without encoding. Tests use it to plant records that
// fail to decode.
func (t *MemoryTable) PutRaw(id string, raw []byte) {
	t.mu.Lock()
	t.records[id] = append([]byte(nil), raw...)
	t.mu.Unlock()
}

func (t *MemoryTable) Get(ctx context.Context, id string, out any) error {
	t.mu.RLock()
	raw, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrKeyNotFound, t.name, id)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return CorruptionError(t.name, id, err)
	}
	return nil
}

func (t *MemoryTable) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrKeyNotFound, t.name, id)
	}
	delete(t.records, id)
	return nil
}

func (t *MemoryTable) Fold(ctx context.Context, fn FoldFunc) error {
	t.mu.RLock()
	ids := make([]string, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	snapshot := make(map[string][]byte, len(t.records))
	for id, raw := range t.records {
		snapshot[id] = raw
	}
	t.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := fn(id, snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}

func (t *MemoryTable) Count(ctx context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records), nil
}

func (t *MemoryTable) Sync(ctx context.Context) error { return nil }
