package entity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLStore adapts a database/sql table to the Entity contract. The
// table needs a text primary key; every managed attribute column is
// read and written as-is. Placeholders use the $N form, which both
// PostgreSQL and SQLite accept.
type SQLStore struct {
	db        *sql.DB
	table     string
	keyColumn string
	morph     string
	columns   []string
}

// NewSQLStore creates a store over one table. columns lists the
// attribute columns the FSM may read or write (the key column is
// implicit).
func NewSQLStore(db *sql.DB, table, keyColumn, morphClass string, columns ...string) *SQLStore {
	return &SQLStore{
		db:        db,
		table:     table,
		keyColumn: keyColumn,
		morph:     morphClass,
		columns:   columns,
	}
}

type txKey struct{}

// Transact runs fn inside a transaction. Entity operations performed
// with the ctx it passes to fn join that transaction. Rollback happens
// on error or panic.
func (s *SQLStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		done = true
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}

	done = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// runner returns the transaction carried by ctx, or the bare DB.
func (s *SQLStore) runner(ctx context.Context) interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
} {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// New returns an unsaved entity handle.
func (s *SQLStore) New(key string, attrs map[string]interface{}) *SQLEntity {
	copied := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &SQLEntity{store: s, key: key, attrs: copied}
}

// Create inserts a new row and returns its handle.
func (s *SQLStore) Create(ctx context.Context, key string, attrs map[string]interface{}) (*SQLEntity, error) {
	e := s.New(key, attrs)
	if err := e.Save(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Find loads an entity by key. Each call returns an independent
// in-memory snapshot of the row.
func (s *SQLStore) Find(ctx context.Context, key string) (*SQLEntity, error) {
	cols := strings.Join(s.columns, ", ")
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", cols, s.table, s.keyColumn)

	dest := make([]interface{}, len(s.columns))
	for i := range dest {
		dest[i] = new(interface{})
	}

	err := s.runner(ctx).QueryRowContext(ctx, query, key).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %s not found", s.morph, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", s.morph, key, err)
	}

	attrs := make(map[string]interface{}, len(s.columns))
	for i, col := range s.columns {
		attrs[col] = normalizeSQLValue(*dest[i].(*interface{}))
	}
	return &SQLEntity{store: s, key: key, attrs: attrs, exists: true}, nil
}

// normalizeSQLValue converts driver byte slices to strings so state
// columns always read as string or nil.
func normalizeSQLValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// SQLEntity is an Entity over one SQLStore row.
type SQLEntity struct {
	store  *SQLStore
	key    string
	attrs  map[string]interface{}
	exists bool
}

func (e *SQLEntity) Key() string        { return e.key }
func (e *SQLEntity) MorphClass() string { return e.store.morph }
func (e *SQLEntity) Exists() bool       { return e.exists }

func (e *SQLEntity) Attribute(name string) interface{} {
	return e.attrs[name]
}

func (e *SQLEntity) SetAttribute(name string, value interface{}) {
	e.attrs[name] = value
}

func (e *SQLEntity) Save(ctx context.Context) error {
	s := e.store
	if e.exists {
		sets := make([]string, len(s.columns))
		args := make([]interface{}, 0, len(s.columns)+1)
		for i, col := range s.columns {
			sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
			args = append(args, e.attrs[col])
		}
		args = append(args, e.key)
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
			s.table, strings.Join(sets, ", "), s.keyColumn, len(s.columns)+1)
		if _, err := s.runner(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update %s %s: %w", s.morph, e.key, err)
		}
		return nil
	}

	cols := append([]string{s.keyColumn}, s.columns...)
	placeholders := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols))
	args = append(args, e.key)
	placeholders[0] = "$1"
	for i, col := range s.columns {
		placeholders[i+1] = fmt.Sprintf("$%d", i+2)
		args = append(args, e.attrs[col])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.runner(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", s.morph, e.key, err)
	}
	e.exists = true
	return nil
}

func (e *SQLEntity) UpdateWhere(ctx context.Context, column string, expected *string, next string) (int64, error) {
	s := e.store

	var query string
	var args []interface{}
	if expected == nil {
		query = fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2 AND %s IS NULL",
			s.table, column, s.keyColumn, column)
		args = []interface{}{next, e.key}
	} else {
		query = fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2 AND %s = $3",
			s.table, column, s.keyColumn, column)
		args = []interface{}{next, e.key, *expected}
	}

	res, err := s.runner(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s.%s: %w", s.table, column, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows, nil
}
