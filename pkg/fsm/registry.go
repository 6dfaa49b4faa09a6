package fsm

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps (model class, column name) to runtime definitions. It
// is populated during a single startup phase; Freeze makes subsequent
// reads lock-free.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]*RuntimeDefinition
	frozen atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*RuntimeDefinition)}
}

// Register validates and stores a definition. Re-registering an
// identical definition is a no-op; a conflicting definition for the
// same key fails.
func (r *Registry) Register(def *RuntimeDefinition) error {
	if def == nil {
		return NewError(ErrorCodeInvalidDefinition, "cannot register a nil definition")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if r.frozen.Load() {
		return NewError(ErrorCodeLogic, "registry is frozen; register definitions during startup")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := def.Key()
	if existing, ok := r.defs[key]; ok {
		if existing.Fingerprint() == def.Fingerprint() {
			return nil
		}
		e := NewError(ErrorCodeInvalidDefinition,
			fmt.Sprintf("conflicting definition already registered for %s", key))
		e.ModelClass = def.ModelClass
		e.Column = def.Column
		return e
	}

	r.defs[key] = def
	return nil
}

// MustRegister is Register that panics on error, for startup wiring.
func (r *Registry) MustRegister(def *RuntimeDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Freeze ends the registration phase. After Freeze, Get reads without
// locking and Register fails.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Get returns the definition for (model class, column name).
func (r *Registry) Get(modelClass, column string) (*RuntimeDefinition, error) {
	key := DefinitionKey(modelClass, column)

	if r.frozen.Load() {
		if def, ok := r.defs[key]; ok {
			return def, nil
		}
		return nil, r.notRegistered(modelClass, column)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.defs[key]; ok {
		return def, nil
	}
	return nil, r.notRegistered(modelClass, column)
}

func (r *Registry) notRegistered(modelClass, column string) error {
	e := NewError(ErrorCodeNotRegistered,
		fmt.Sprintf("no machine registered for %s.%s", modelClass, column))
	e.ModelClass = modelClass
	e.Column = column
	return e
}

// Has reports whether a definition exists for the key.
func (r *Registry) Has(modelClass, column string) bool {
	_, err := r.Get(modelClass, column)
	return err == nil
}

// HasModelClass reports whether any column is registered for the
// model class.
func (r *Registry) HasModelClass(modelClass string) bool {
	for _, def := range r.Definitions() {
		if def.ModelClass == modelClass {
			return true
		}
	}
	return false
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.defs))
	for key := range r.defs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Definitions returns the registered definitions sorted by key.
func (r *Registry) Definitions() []*RuntimeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*RuntimeDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key() < defs[j].Key() })
	return defs
}
