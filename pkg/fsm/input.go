package fsm

import (
	"time"

	"github.com/statorio/stator/pkg/entity"
)

// TransitionInput is the immutable per-attempt snapshot handed to
// every guard, action, and callback. The engine builds one per
// Perform call; user code must treat it as read-only.
type TransitionInput struct {
	Model     entity.Entity
	From      *State
	To        State
	Context   ContextDTO
	Event     string
	DryRun    bool
	Mode      Mode
	Source    Source
	Metadata  map[string]interface{}
	Params    map[string]interface{}
	Timestamp time.Time
}

// Normalize fills defaults and checks the mode invariant: a normal
// transition must name a target state.
func (in *TransitionInput) Normalize() error {
	if in.Mode == "" {
		in.Mode = ModeNormal
	}
	if in.Source == "" {
		in.Source = SourceSystem
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	in.DryRun = in.Mode == ModeDryRun
	if in.Mode == ModeNormal && in.To == "" {
		return NewError(ErrorCodeInvalidArgument, "target state is required for normal transitions")
	}
	return nil
}

// ContextMap returns the context payload as a mapping, or nil when no
// context was supplied.
func (in *TransitionInput) ContextMap() map[string]interface{} {
	if in.Context == nil {
		return nil
	}
	return in.Context.ToMap()
}

// FromString returns the canonical from-state or "null".
func (in *TransitionInput) FromString() string {
	if in.From == nil {
		return "null"
	}
	return string(*in.From)
}
