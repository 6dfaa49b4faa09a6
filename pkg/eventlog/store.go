package eventlog

import (
	"context"
	"sync"
)

// Store persists event log records.
type Store interface {
	// Append writes one record.
	Append(ctx context.Context, rec *Record) error

	// ForModel returns the records of one (model, column) ordered by
	// OccurredAt ascending.
	ForModel(ctx context.Context, modelType, modelID, column string) ([]*Record, error)
}

// MemoryStore keeps records in memory, for tests and single-process
// setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	copied := *rec
	s.mu.Lock()
	s.records = append(s.records, &copied)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ForModel(ctx context.Context, modelType, modelID, column string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, rec := range s.records {
		if rec.ModelType == modelType && rec.ModelID == modelID && rec.Column == column {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out, nil
}

// All returns every record in append order.
func (s *MemoryStore) All() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}
