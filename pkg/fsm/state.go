// Package fsm defines declarative finite-state machines attached to
// named state columns of host entities.
//
// A RuntimeDefinition describes the states, transitions, guards,
// actions, and callbacks of one machine, keyed by (model class, column
// name). Definitions are built once at startup, validated, and
// registered; the transition engine consults them read-only.
//
// Example usage:
//
//	def, err := fsm.NewBuilder("Order", "status").
//	    State("pending").Type(fsm.StateTypeInitial).Done().
//	    State("processing").Done().
//	    State("completed").Type(fsm.StateTypeFinal).Terminal(true).Done().
//	    Initial("pending").
//	    Transition("pending", "processing").
//	        Event("process").
//	        GuardFunc("stock-available", checkStock).
//	        Done().
//	    Transition("processing", "completed").Done().
//	    Build()
package fsm

import "fmt"

// State is the canonical string value of a machine state.
type State string

// StateWildcard matches any current state when used as a transition's
// from-state. Exact-from transitions always win over wildcard ones.
const StateWildcard State = "*"

// EventWildcard as a declared transition event matches any requested
// event. A caller that requests EventWildcard matches only transitions
// declared with it.
const EventWildcard = "*"

func (s State) String() string {
	return string(s)
}

// StateRef returns a pointer to s. Transition from-states are pointers
// because "no prior state" is a valid value.
func StateRef(s State) *State {
	return &s
}

// Canonical converts a raw attribute value to its canonical state.
// Returns nil for nil input. Enumerated types surface through
// fmt.Stringer.
func Canonical(v interface{}) *State {
	switch val := v.(type) {
	case nil:
		return nil
	case State:
		return &val
	case *State:
		return val
	case string:
		s := State(val)
		return &s
	case fmt.Stringer:
		s := State(val.String())
		return &s
	default:
		s := State(fmt.Sprintf("%v", val))
		return &s
	}
}

// StatesEqual reports whether two optional states hold the same value.
func StatesEqual(a, b *State) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// StateType classifies a state within its machine.
type StateType string

const (
	StateTypeInitial      StateType = "initial"
	StateTypeIntermediate StateType = "intermediate"
	StateTypeFinal        StateType = "final"
	StateTypeError        StateType = "error"
)

// StateBehavior describes how a state participates in persistence.
type StateBehavior string

const (
	StateBehaviorTransient  StateBehavior = "transient"
	StateBehaviorPersistent StateBehavior = "persistent"
	StateBehaviorTerminal   StateBehavior = "terminal"
)

// TransitionType classifies how a transition is initiated.
type TransitionType string

const (
	TransitionTypeAutomatic   TransitionType = "automatic"
	TransitionTypeManual      TransitionType = "manual"
	TransitionTypeTriggered   TransitionType = "triggered"
	TransitionTypeConditional TransitionType = "conditional"
)

// TransitionBehavior describes when a transition's side effects run.
type TransitionBehavior string

const (
	TransitionImmediate TransitionBehavior = "immediate"
	TransitionDeferred  TransitionBehavior = "deferred"
	TransitionQueued    TransitionBehavior = "queued"
)

// GuardMode selects the guard evaluation strategy.
type GuardMode string

const (
	// GuardAll requires every guard to return exactly true.
	GuardAll GuardMode = "all"

	// GuardAny passes on the first guard returning exactly true.
	GuardAny GuardMode = "any"

	// GuardFirst lets the first decidable guard determine the outcome.
	GuardFirst GuardMode = "first"
)

// ActionTiming places an action within the transition phases.
type ActionTiming string

const (
	ActionBefore    ActionTiming = "before"
	ActionAfter     ActionTiming = "after"
	ActionOnSuccess ActionTiming = "on_success"
	ActionOnFailure ActionTiming = "on_failure"
)

// CallbackTiming places a callback within the transition phases.
type CallbackTiming string

const (
	CallbackOnEntry      CallbackTiming = "on_entry"
	CallbackOnExit       CallbackTiming = "on_exit"
	CallbackOnTransition CallbackTiming = "on_transition"
	CallbackBeforeSave   CallbackTiming = "before_save"
	CallbackAfterSave    CallbackTiming = "after_save"
)

// Mode selects how a transition attempt executes.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeDryRun Mode = "dry_run"
	ModeForce  Mode = "force"
	ModeSilent Mode = "silent"
)

// Source records what initiated a transition attempt.
type Source string

const (
	SourceUser      Source = "user"
	SourceSystem    Source = "system"
	SourceAPI       Source = "api"
	SourceScheduler Source = "scheduler"
	SourceMigration Source = "migration"
)
