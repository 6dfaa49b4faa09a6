package entity

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps entities in process memory. It backs tests and
// embedded hosts that have no database.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]map[string]map[string]interface{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]map[string]map[string]interface{})}
}

// New returns an unsaved entity. Save persists it.
func (s *MemoryStore) New(morphClass, key string, attrs map[string]interface{}) *MemoryEntity {
	copied := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &MemoryEntity{store: s, morph: morphClass, key: key, attrs: copied}
}

// Create persists a new entity immediately.
func (s *MemoryStore) Create(ctx context.Context, morphClass, key string, attrs map[string]interface{}) (*MemoryEntity, error) {
	e := s.New(morphClass, key, attrs)
	if err := e.Save(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Find loads a fresh entity handle for a stored row. Each call returns
// an independent snapshot, the way separate workers would each load
// their own copy.
func (s *MemoryStore) Find(morphClass, key string) (*MemoryEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey, ok := s.rows[morphClass]
	if !ok {
		return nil, false
	}
	row, ok := byKey[key]
	if !ok {
		return nil, false
	}

	attrs := make(map[string]interface{}, len(row))
	for k, v := range row {
		attrs[k] = v
	}
	return &MemoryEntity{store: s, morph: morphClass, key: key, attrs: attrs, exists: true}, true
}

// stored returns the live row map, creating buckets as needed. Callers
// must hold s.mu.
func (s *MemoryStore) stored(morphClass, key string) map[string]interface{} {
	byKey, ok := s.rows[morphClass]
	if !ok {
		byKey = make(map[string]map[string]interface{})
		s.rows[morphClass] = byKey
	}
	row, ok := byKey[key]
	if !ok {
		row = make(map[string]interface{})
		byKey[key] = row
	}
	return row
}

// MemoryEntity is an Entity over a MemoryStore row. Attribute writes
// stay local until Save.
type MemoryEntity struct {
	store  *MemoryStore
	morph  string
	key    string
	attrs  map[string]interface{}
	exists bool
}

func (e *MemoryEntity) Key() string        { return e.key }
func (e *MemoryEntity) MorphClass() string { return e.morph }
func (e *MemoryEntity) Exists() bool       { return e.exists }

func (e *MemoryEntity) Attribute(name string) interface{} {
	return e.attrs[name]
}

func (e *MemoryEntity) SetAttribute(name string, value interface{}) {
	e.attrs[name] = value
}

func (e *MemoryEntity) Save(ctx context.Context) error {
	if e.key == "" {
		return fmt.Errorf("entity %s has no key", e.morph)
	}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	row := e.store.stored(e.morph, e.key)
	for k, v := range e.attrs {
		row[k] = v
	}
	e.exists = true
	return nil
}

func (e *MemoryEntity) UpdateWhere(ctx context.Context, column string, expected *string, next string) (int64, error) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	byKey, ok := e.store.rows[e.morph]
	if !ok {
		return 0, nil
	}
	row, ok := byKey[e.key]
	if !ok {
		return 0, nil
	}

	current, hasValue := row[column]
	if expected == nil {
		if hasValue && current != nil {
			return 0, nil
		}
	} else {
		str, isString := current.(string)
		if !isString || str != *expected {
			return 0, nil
		}
	}

	row[column] = next
	return 1, nil
}
