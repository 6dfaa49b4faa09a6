// Package fsmlog persists per-attempt transition log records and
// derives state timelines from them. Field names follow the shared
// fsm_logs table layout so records interoperate across
// implementations.
package fsmlog

import "time"

// Record is one fsm_logs row. Success rows have a nil
// ExceptionDetails; failure rows carry the truncated exception text.
type Record struct {
	ID               string                 `json:"id"`
	SubjectID        *string                `json:"subject_id"`
	SubjectType      *string                `json:"subject_type"`
	ModelID          string                 `json:"model_id"`
	ModelType        string                 `json:"model_type"`
	Column           string                 `json:"fsm_column"`
	FromState        *string                `json:"from_state"`
	ToState          string                 `json:"to_state"`
	TransitionEvent  *string                `json:"transition_event"`
	ContextSnapshot  map[string]interface{} `json:"context_snapshot"`
	ExceptionDetails *string                `json:"exception_details"`
	DurationMs       *uint64                `json:"duration_ms"`
	HappenedAt       time.Time              `json:"happened_at"`
}

// Succeeded reports whether the record logs a successful transition.
func (r *Record) Succeeded() bool {
	return r.ExceptionDetails == nil
}
