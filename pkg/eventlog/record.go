// Package eventlog keeps the append-only fsm_event_logs history of
// successful transitions and offers replay, validation, and
// statistics over it. Field names follow the shared table layout.
package eventlog

import "time"

// Record is one fsm_event_logs row.
type Record struct {
	ID             string                 `json:"id"`
	ModelID        string                 `json:"model_id"`
	ModelType      string                 `json:"model_type"`
	Column         string                 `json:"column_name"`
	FromState      *string                `json:"from_state"`
	ToState        string                 `json:"to_state"`
	TransitionName *string                `json:"transition_name"`
	OccurredAt     time.Time              `json:"occurred_at"`
	Context        map[string]interface{} `json:"context"`
	Metadata       map[string]interface{} `json:"metadata"`
	CreatedAt      time.Time              `json:"created_at"`
}

// FromString returns the canonical from-state or "null".
func (r *Record) FromString() string {
	if r.FromState == nil {
		return "null"
	}
	return *r.FromState
}
