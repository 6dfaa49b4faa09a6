package fsmlog

import (
	"context"
	"sync"
)

// Store persists transition log records.
type Store interface {
	// Append writes one record.
	Append(ctx context.Context, rec *Record) error

	// ForModel returns the records of one (model, column) ordered by
	// HappenedAt ascending, insertion order breaking ties.
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
	// Records are appended in commit order and HappenedAt is monotonic
	// per (model, column) under the CAS discipline, so insertion order
	// already satisfies the contract.
	return out, nil
}

// All returns every record in insertion order, for tests.
func (s *MemoryStore) All() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		copied := *rec
		out = append(out, &copied)
	}
	return out
}
