package fsm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// StateDefinition describes one state of a machine. Immutable after
// construction.
type StateDefinition struct {
	Name        State
	Description string
	Type        StateType
	Category    string
	Behavior    StateBehavior
	Metadata    map[string]interface{}
	Terminal    bool
	Priority    int
	OnEntry     []*Callback
	OnExit      []*Callback
}

// IsTerminal reports whether the state can never be exited.
func (s *StateDefinition) IsTerminal() bool {
	return s.Terminal || s.Behavior == StateBehaviorTerminal
}

// TransitionDefinition describes one edge of a machine. From is nil
// for "no prior state" and StateWildcard for "any state". Immutable
// after construction.
type TransitionDefinition struct {
	From         *State
	To           State
	Event        string
	Guards       []*Guard
	Actions      []*Action
	OnTransition []*Callback
	Type         TransitionType
	Priority     int
	Behavior     TransitionBehavior
	GuardMode    GuardMode
	Metadata     map[string]interface{}
	Reversible   bool
	Timeout      time.Duration
	Description  string
}

// Name returns the transition's display name: an explicit
// metadata["name"], else the event, else "from->to".
func (t *TransitionDefinition) Name() string {
	if t.Metadata != nil {
		if name, ok := t.Metadata["name"].(string); ok && name != "" {
			return name
		}
	}
	if t.Event != "" && t.Event != EventWildcard {
		return t.Event
	}
	return t.FromString() + "->" + string(t.To)
}

// FromString returns the canonical from-state or "null".
func (t *TransitionDefinition) FromString() string {
	if t.From == nil {
		return "null"
	}
	return string(*t.From)
}

// isWildcardFrom reports whether the transition exits any state.
func (t *TransitionDefinition) isWildcardFrom() bool {
	return t.From != nil && *t.From == StateWildcard
}

// matchesEvent applies the event selection rule: a declared wildcard
// matches any requested event, but a requested wildcard matches only
// declared wildcards.
func (t *TransitionDefinition) matchesEvent(requested string) bool {
	if requested == EventWildcard {
		return t.Event == EventWildcard
	}
	if t.Event == EventWildcard {
		return true
	}
	return t.Event == requested
}

// RuntimeDefinition is one complete machine, keyed by (model class,
// column name). Build via Builder or as a literal, then Validate.
type RuntimeDefinition struct {
	ModelClass  string
	Column      string
	States      map[State]*StateDefinition
	Transitions []*TransitionDefinition
	Initial     *State
	ContextType string
	Description string

	// ParentState names the owning state of a hierarchical child
	// machine. Children reference parents by name only; there are no
	// object backreferences.
	ParentState string

	// StateEnum optionally maps a canonical string back to the host's
	// enumerated value for this machine.
	StateEnum func(value string) (interface{}, bool)
}

// DefinitionKey builds the registry key for a (model class, column)
// pair.
func DefinitionKey(modelClass, column string) string {
	return modelClass + "." + column
}

// Key returns the registry key of this definition.
func (d *RuntimeDefinition) Key() string {
	return DefinitionKey(d.ModelClass, d.Column)
}

// StateDef returns the definition of a state, or nil.
func (d *RuntimeDefinition) StateDef(s State) *StateDefinition {
	return d.States[s]
}

// TypedState round-trips a canonical string into the registered
// enumerated value when the machine knows one.
func (d *RuntimeDefinition) TypedState(s State) (interface{}, bool) {
	if d.StateEnum == nil {
		return nil, false
	}
	return d.StateEnum(string(s))
}

// Find selects the transition for (from, event): exact-from matches
// win over wildcard-from; within the same class, definition order
// wins. Returns nil when nothing matches.
func (d *RuntimeDefinition) Find(from *State, event string) *TransitionDefinition {
	var wildcard *TransitionDefinition
	for _, t := range d.Transitions {
		if !t.matchesEvent(event) {
			continue
		}
		if t.isWildcardFrom() {
			if wildcard == nil {
				wildcard = t
			}
			continue
		}
		if StatesEqual(t.From, from) {
			return t
		}
	}
	return wildcard
}

// FindTo selects like Find but additionally requires the transition's
// target to equal to.
func (d *RuntimeDefinition) FindTo(from *State, to State, event string) *TransitionDefinition {
	var wildcard *TransitionDefinition
	for _, t := range d.Transitions {
		if t.To != to || !t.matchesEvent(event) {
			continue
		}
		if t.isWildcardFrom() {
			if wildcard == nil {
				wildcard = t
			}
			continue
		}
		if StatesEqual(t.From, from) {
			return t
		}
	}
	return wildcard
}

// TransitionsFrom returns every transition selectable from the given
// state, exact matches first, preserving definition order.
func (d *RuntimeDefinition) TransitionsFrom(from *State) []*TransitionDefinition {
	var exact, wildcard []*TransitionDefinition
	for _, t := range d.Transitions {
		switch {
		case t.isWildcardFrom():
			wildcard = append(wildcard, t)
		case StatesEqual(t.From, from):
			exact = append(exact, t)
		}
	}
	return append(exact, wildcard...)
}

var validGuardModes = map[GuardMode]bool{
	"": true, GuardAll: true, GuardAny: true, GuardFirst: true,
}

var validTransitionTypes = map[TransitionType]bool{
	"": true, TransitionTypeAutomatic: true, TransitionTypeManual: true,
	TransitionTypeTriggered: true, TransitionTypeConditional: true,
}

var validTransitionBehaviors = map[TransitionBehavior]bool{
	"": true, TransitionImmediate: true, TransitionDeferred: true, TransitionQueued: true,
}

var validActionTimings = map[ActionTiming]bool{
	"": true, ActionBefore: true, ActionAfter: true, ActionOnSuccess: true, ActionOnFailure: true,
}

var validCallbackTimings = map[CallbackTiming]bool{
	"": true, CallbackOnEntry: true, CallbackOnExit: true, CallbackOnTransition: true,
	CallbackBeforeSave: true, CallbackAfterSave: true,
}

// Validate checks the structural invariants of the definition.
func (d *RuntimeDefinition) Validate() error {
	fail := func(format string, args ...interface{}) error {
		e := NewError(ErrorCodeInvalidDefinition, fmt.Sprintf(format, args...))
		e.ModelClass = d.ModelClass
		e.Column = d.Column
		return e
	}

	if d.ModelClass == "" {
		return fail("model class is required")
	}
	if d.Column == "" {
		return fail("column name is required")
	}
	if len(d.States) == 0 {
		return fail("at least one state is required")
	}

	for key, state := range d.States {
		if state == nil {
			return fail("state %q has no definition", key)
		}
		if state.Name != key {
			return fail("state key %q does not match state name %q", key, state.Name)
		}
		if key == StateWildcard {
			return fail("the wildcard is not a valid state name")
		}
		for _, cb := range state.OnEntry {
			if !validCallbackTimings[cb.Timing] {
				return fail("state %q has callback %q with invalid timing %q", key, cb.Label(), cb.Timing)
			}
		}
		for _, cb := range state.OnExit {
			if !validCallbackTimings[cb.Timing] {
				return fail("state %q has callback %q with invalid timing %q", key, cb.Label(), cb.Timing)
			}
		}
	}

	if d.Initial != nil {
		if _, ok := d.States[*d.Initial]; !ok {
			return fail("initial state %q is not defined", *d.Initial)
		}
	}

	for i, t := range d.Transitions {
		if t == nil {
			return fail("transition %d is nil", i)
		}
		if t.To == "" {
			return fail("transition %d has no target state", i)
		}
		if t.To == StateWildcard {
			return fail("transition %d targets the wildcard", i)
		}
		if _, ok := d.States[t.To]; !ok {
			return fail("transition %d targets unknown state %q", i, t.To)
		}
		if t.From != nil && *t.From != StateWildcard {
			from, ok := d.States[*t.From]
			if !ok {
				return fail("transition %d leaves unknown state %q", i, *t.From)
			}
			if from.IsTerminal() {
				return fail("transition %d leaves terminal state %q", i, *t.From)
			}
		}
		if !validGuardModes[t.GuardMode] {
			return fail("transition %d has invalid guard mode %q", i, t.GuardMode)
		}
		if !validTransitionTypes[t.Type] {
			return fail("transition %d has invalid type %q", i, t.Type)
		}
		if !validTransitionBehaviors[t.Behavior] {
			return fail("transition %d has invalid behavior %q", i, t.Behavior)
		}
		for _, a := range t.Actions {
			if !validActionTimings[a.Timing] {
				return fail("transition %d action %q has invalid timing %q", i, a.Label(), a.Timing)
			}
		}
		for _, cb := range t.OnTransition {
			if !validCallbackTimings[cb.Timing] {
				return fail("transition %d callback %q has invalid timing %q", i, cb.Label(), cb.Timing)
			}
		}
	}

	return nil
}

// Fingerprint returns a stable hash of the definition's structure,
// used to detect conflicting re-registration. Metadata values are not
// part of the fingerprint.
func (d *RuntimeDefinition) Fingerprint() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s|%s|%s|%s|%s|", d.ModelClass, d.Column, d.ContextType, d.Description, d.ParentState)
	if d.Initial != nil {
		b.WriteString(string(*d.Initial))
	}
	b.WriteByte('\n')

	names := make([]string, 0, len(d.States))
	for name := range d.States {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		s := d.States[State(name)]
		fmt.Fprintf(&b, "s:%s|%s|%s|%s|%v|%d|", s.Name, s.Type, s.Behavior, s.Category, s.Terminal, s.Priority)
		for _, cb := range s.OnEntry {
			fmt.Fprintf(&b, "en:%s/%s/%v;", cb.Label(), cb.Timing, cb.Queued)
		}
		for _, cb := range s.OnExit {
			fmt.Fprintf(&b, "ex:%s/%s/%v;", cb.Label(), cb.Timing, cb.Queued)
		}
		b.WriteByte('\n')
	}

	for _, t := range d.Transitions {
		fmt.Fprintf(&b, "t:%s|%s|%s|%s|%d|%s|%s|%v|%s|",
			t.FromString(), t.To, t.Event, t.Type, t.Priority, t.Behavior, t.GuardMode, t.Reversible, t.Timeout)
		for _, g := range t.Guards {
			fmt.Fprintf(&b, "g:%s/%d/%v;", g.Label(), g.Priority, g.StopOnFailure)
		}
		for _, a := range t.Actions {
			fmt.Fprintf(&b, "a:%s/%s/%v;", a.Label(), a.Timing, a.RunAfter)
		}
		for _, cb := range t.OnTransition {
			fmt.Fprintf(&b, "c:%s/%s/%v/%v;", cb.Label(), cb.Timing, cb.RunAfter, cb.Queued)
		}
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
