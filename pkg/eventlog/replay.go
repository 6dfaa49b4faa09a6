package eventlog

import (
	"context"
	"fmt"

	"github.com/statorio/stator/pkg/fsm"
)

// ReplayService answers read-only questions about a model's recorded
// history. It never mutates the log.
type ReplayService struct {
	store Store
}

// NewReplayService wraps a store.
func NewReplayService(store Store) *ReplayService {
	return &ReplayService{store: store}
}

// ReplayResult reconstructs a model's path through its states.
type ReplayResult struct {
	InitialState    *string   `json:"initial_state"`
	FinalState      *string   `json:"final_state"`
	TransitionCount int       `json:"transition_count"`
	Transitions     []*Record `json:"transitions"`
}

// ValidationResult reports history consistency.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Statistics summarizes a model's history.
type Statistics struct {
	TotalTransitions    int            `json:"total_transitions"`
	UniqueStates        int            `json:"unique_states"`
	StateFrequency      map[string]int `json:"state_frequency"`
	TransitionFrequency map[string]int `json:"transition_frequency"`
}

func validateArgs(modelID, column string) error {
	if modelID == "" {
		return fsm.NewError(fsm.ErrorCodeInvalidArgument, "model id must be a non-empty string")
	}
	if column == "" {
		return fsm.NewError(fsm.ErrorCodeInvalidArgument, "column name must be a non-empty string")
	}
	return nil
}

// TransitionHistory returns the recorded transitions ordered by
// occurrence.
func (s *ReplayService) TransitionHistory(ctx context.Context, modelType, modelID, column string) ([]*Record, error) {
	if err := validateArgs(modelID, column); err != nil {
		return nil, err
	}
	return s.store.ForModel(ctx, modelType, modelID, column)
}

// Replay folds the history into initial state, final state, and
// count. An empty history yields nils and zero.
func (s *ReplayService) Replay(ctx context.Context, modelType, modelID, column string) (*ReplayResult, error) {
	history, err := s.TransitionHistory(ctx, modelType, modelID, column)
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{
		TransitionCount: len(history),
		Transitions:     history,
	}
	if len(history) == 0 {
		return result, nil
	}

	result.InitialState = history[0].FromState
	final := history[len(history)-1].ToState
	result.FinalState = &final
	return result, nil
}

// ValidateHistory checks that each entry's from-state continues the
// previous entry's to-state. The first entry is unconstrained. Every
// inconsistency is reported, indexed by the offending entry.
func (s *ReplayService) ValidateHistory(ctx context.Context, modelType, modelID, column string) (*ValidationResult, error) {
	history, err := s.TransitionHistory(ctx, modelType, modelID, column)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{Valid: true, Errors: []string{}}
	for i := 1; i < len(history); i++ {
		prev := history[i-1]
		cur := history[i]
		if cur.FromState != nil && *cur.FromState == prev.ToState {
			continue
		}
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Transition %d: from_state '%s' doesn't match previous to_state '%s'",
				i, cur.FromString(), prev.ToState))
	}
	return result, nil
}

// Statistics counts state and transition frequencies. A transition
// contributes one count to its non-null from-state and one to its
// to-state, so a self-transition increments its state twice.
func (s *ReplayService) Statistics(ctx context.Context, modelType, modelID, column string) (*Statistics, error) {
	history, err := s.TransitionHistory(ctx, modelType, modelID, column)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalTransitions:    len(history),
		StateFrequency:      make(map[string]int),
		TransitionFrequency: make(map[string]int),
	}
	for _, rec := range history {
		if rec.FromState != nil {
			stats.StateFrequency[*rec.FromState]++
		}
		stats.StateFrequency[rec.ToState]++
		stats.TransitionFrequency[rec.FromString()+" → "+rec.ToState]++
	}
	stats.UniqueStates = len(stats.StateFrequency)
	return stats, nil
}
