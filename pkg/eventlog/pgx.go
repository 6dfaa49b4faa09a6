package eventlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxStore persists records through a pgx connection pool, using
// native timestamptz and jsonb columns.
type PgxStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPgxStore wraps a pool. An empty table name selects
// "fsm_event_logs".
func NewPgxStore(pool *pgxpool.Pool, table string) *PgxStore {
	if table == "" {
		table = "fsm_event_logs"
	}
	return &PgxStore{pool: pool, table: table}
}

// EnsureSchema creates the table and its three query indexes.
func (s *PgxStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			model_type TEXT NOT NULL,
			column_name TEXT NOT NULL,
			from_state TEXT,
			to_state TEXT NOT NULL,
			transition_name TEXT,
			occurred_at TIMESTAMPTZ NOT NULL,
			context JSONB,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_occurred_at ON %[1]s (occurred_at)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_column_name ON %[1]s (column_name)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_from_to ON %[1]s (from_state, to_state)`, s.table),
	}
	for _, ddl := range statements {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *PgxStore) Append(ctx context.Context, rec *Record) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(id, model_id, model_type, column_name, from_state, to_state,
		 transition_name, occurred_at, context, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, s.table)

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.ModelID, rec.ModelType, rec.Column,
		rec.FromState, rec.ToState, rec.TransitionName,
		rec.OccurredAt, rec.Context, rec.Metadata, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event log: %w", err)
	}
	return nil
}

func (s *PgxStore) ForModel(ctx context.Context, modelType, modelID, column string) ([]*Record, error) {
	query := fmt.Sprintf(`SELECT id, model_id, model_type, column_name, from_state,
		to_state, transition_name, occurred_at, context, metadata, created_at
		FROM %s
		WHERE model_type = $1 AND model_id = $2 AND column_name = $3
		ORDER BY occurred_at ASC`, s.table)

	rows, err := s.pool.Query(ctx, query, modelType, modelID, column)
	if err != nil {
		return nil, fmt.Errorf("failed to query event logs: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(&rec.ID, &rec.ModelID, &rec.ModelType, &rec.Column,
			&rec.FromState, &rec.ToState, &rec.TransitionName, &rec.OccurredAt,
			&rec.Context, &rec.Metadata, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event log: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
