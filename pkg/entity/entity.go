// Package entity abstracts the host application's persistence layer
// down to the handful of operations the FSM engine needs: attribute
// access, save, and a compare-and-swap update on a single column.
package entity

import "context"

// Entity is a handle on one host domain object. Implementations adapt
// the host's storage; the engine never sees rows or ORMs directly.
type Entity interface {
	// Key returns the primary identifier as a string.
	Key() string

	// MorphClass returns the stable type name used in logs and
	// definition lookups.
	MorphClass() string

	// Attribute reads a named attribute. Missing attributes and SQL
	// NULL both read as nil.
	Attribute(name string) interface{}

	// SetAttribute writes a named attribute in memory only.
	SetAttribute(name string, value interface{})

	// Exists reports whether the entity is persisted.
	Exists() bool

	// Save persists all in-memory attributes.
	Save(ctx context.Context) error

	// UpdateWhere atomically sets column to next where the stored
	// value still equals expected (IS NULL when expected is nil) and
	// returns the number of rows affected. It never touches in-memory
	// attributes.
	UpdateWhere(ctx context.Context, column string, expected *string, next string) (int64, error)
}

// Transactor runs a function inside a storage transaction. Stores that
// support it let the engine roll back state writes when a later phase
// fails.
type Transactor interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}
