package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLStore persists records through database/sql with $N placeholders.
type SQLStore struct {
	db    *sql.DB
	table string
}

// NewSQLStore wraps a database handle. An empty table name selects
// "fsm_event_logs".
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if table == "" {
		table = "fsm_event_logs"
	}
	return &SQLStore{db: db, table: table}
}

// EnsureSchema creates the table and its three query indexes.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			model_type TEXT NOT NULL,
			column_name TEXT NOT NULL,
			from_state TEXT,
			to_state TEXT NOT NULL,
			transition_name TEXT,
			occurred_at TIMESTAMP NOT NULL,
			context TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_occurred_at ON %[1]s (occurred_at)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_column_name ON %[1]s (column_name)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_from_to ON %[1]s (from_state, to_state)`, s.table),
	}
	for _, ddl := range statements {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, rec *Record) error {
	contextJSON, err := encodeJSON(rec.Context)
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}
	metadataJSON, err := encodeJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(id, model_id, model_type, column_name, from_state, to_state,
		 transition_name, occurred_at, context, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.ModelID,
		rec.ModelType,
		rec.Column,
		nullString(rec.FromState),
		rec.ToState,
		nullString(rec.TransitionName),
		rec.OccurredAt,
		contextJSON,
		metadataJSON,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event log: %w", err)
	}
	return nil
}

func (s *SQLStore) ForModel(ctx context.Context, modelType, modelID, column string) ([]*Record, error) {
	query := fmt.Sprintf(`SELECT id, model_id, model_type, column_name, from_state,
		to_state, transition_name, occurred_at, context, metadata, created_at
		FROM %s
		WHERE model_type = $1 AND model_id = $2 AND column_name = $3
		ORDER BY occurred_at ASC`, s.table)

	rows, err := s.db.QueryContext(ctx, query, modelType, modelID, column)
	if err != nil {
		return nil, fmt.Errorf("failed to query event logs: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec                   Record
			fromState, name       sql.NullString
			contextJSON, metaJSON sql.NullString
		)
		err := rows.Scan(&rec.ID, &rec.ModelID, &rec.ModelType, &rec.Column,
			&fromState, &rec.ToState, &name, &rec.OccurredAt,
			&contextJSON, &metaJSON, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event log: %w", err)
		}

		rec.FromState = stringPtr(fromState)
		rec.TransitionName = stringPtr(name)
		if rec.Context, err = decodeJSON(contextJSON); err != nil {
			return nil, fmt.Errorf("failed to decode context: %w", err)
		}
		if rec.Metadata, err = decodeJSON(metaJSON); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func encodeJSON(m map[string]interface{}) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeJSON(ns sql.NullString) (map[string]interface{}, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
