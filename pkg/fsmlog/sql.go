package fsmlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLStore persists records through database/sql. Statements use $N
// placeholders, which both PostgreSQL and SQLite accept.
type SQLStore struct {
	db    *sql.DB
	table string
}

// NewSQLStore wraps a database handle. An empty table name selects
// "fsm_logs".
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if table == "" {
		table = "fsm_logs"
	}
	return &SQLStore{db: db, table: table}
}

// EnsureSchema creates the log table when it does not exist. The DDL
// sticks to types both supported dialects understand.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		subject_id TEXT,
		subject_type TEXT,
		model_id TEXT NOT NULL,
		model_type TEXT NOT NULL,
		fsm_column TEXT NOT NULL,
		from_state TEXT,
		to_state TEXT NOT NULL,
		transition_event TEXT,
		context_snapshot TEXT,
		exception_details TEXT,
		duration_ms BIGINT,
		happened_at TIMESTAMP NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, rec *Record) error {
	var snapshot sql.NullString
	if rec.ContextSnapshot != nil {
		data, err := json.Marshal(rec.ContextSnapshot)
		if err != nil {
			return fmt.Errorf("failed to encode context snapshot: %w", err)
		}
		snapshot = sql.NullString{String: string(data), Valid: true}
	}

	var duration sql.NullInt64
	if rec.DurationMs != nil {
		duration = sql.NullInt64{Int64: int64(*rec.DurationMs), Valid: true}
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(id, subject_id, subject_type, model_id, model_type, fsm_column,
		 from_state, to_state, transition_event, context_snapshot,
		 exception_details, duration_ms, happened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`, s.table)

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		nullString(rec.SubjectID),
		nullString(rec.SubjectType),
		rec.ModelID,
		rec.ModelType,
		rec.Column,
		nullString(rec.FromState),
		rec.ToState,
		nullString(rec.TransitionEvent),
		snapshot,
		nullString(rec.ExceptionDetails),
		duration,
		rec.HappenedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition log: %w", err)
	}
	return nil
}

func (s *SQLStore) ForModel(ctx context.Context, modelType, modelID, column string) ([]*Record, error) {
	query := fmt.Sprintf(`SELECT id, subject_id, subject_type, model_id, model_type,
		fsm_column, from_state, to_state, transition_event, context_snapshot,
		exception_details, duration_ms, happened_at
		FROM %s
		WHERE model_type = $1 AND model_id = $2 AND fsm_column = $3
		ORDER BY happened_at ASC`, s.table)

	rows, err := s.db.QueryContext(ctx, query, modelType, modelID, column)
	if err != nil {
		return nil, fmt.Errorf("failed to query transition logs: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec                               Record
		subjectID, subjectType, fromState sql.NullString
		event, snapshot, exception        sql.NullString
		duration                          sql.NullInt64
	)
	err := rows.Scan(
		&rec.ID, &subjectID, &subjectType, &rec.ModelID, &rec.ModelType,
		&rec.Column, &fromState, &rec.ToState, &event, &snapshot,
		&exception, &duration, &rec.HappenedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transition log: %w", err)
	}

	rec.SubjectID = stringPtr(subjectID)
	rec.SubjectType = stringPtr(subjectType)
	rec.FromState = stringPtr(fromState)
	rec.TransitionEvent = stringPtr(event)
	rec.ExceptionDetails = stringPtr(exception)
	if duration.Valid {
		d := uint64(duration.Int64)
		rec.DurationMs = &d
	}
	if snapshot.Valid && snapshot.String != "" {
		if err := json.Unmarshal([]byte(snapshot.String), &rec.ContextSnapshot); err != nil {
			return nil, fmt.Errorf("failed to decode context snapshot: %w", err)
		}
	}
	return &rec, nil
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
