package fsm

import (
	"fmt"
	"time"
)

// Builder provides a fluent API for assembling runtime definitions.
type Builder struct {
	def *RuntimeDefinition
	err error
}

// stateBuilder builds a single state.
type stateBuilder struct {
	parent *Builder
	state  *StateDefinition
}

// transitionBuilder builds a single transition.
type transitionBuilder struct {
	parent     *Builder
	transition *TransitionDefinition
}

// NewBuilder starts a definition for the given model class and state
// column.
func NewBuilder(modelClass, column string) *Builder {
	return &Builder{
		def: &RuntimeDefinition{
			ModelClass: modelClass,
			Column:     column,
			States:     make(map[State]*StateDefinition),
		},
	}
}

// Description sets the machine description.
func (b *Builder) Description(desc string) *Builder {
	b.def.Description = desc
	return b
}

// ContextType names the registered context DTO type for this machine.
func (b *Builder) ContextType(name string) *Builder {
	b.def.ContextType = name
	return b
}

// Initial sets the state assumed when the column is null.
func (b *Builder) Initial(name State) *Builder {
	b.def.Initial = StateRef(name)
	return b
}

// StateEnum registers the typed-enumeration hook.
func (b *Builder) StateEnum(fn func(value string) (interface{}, bool)) *Builder {
	b.def.StateEnum = fn
	return b
}

// ParentState marks this machine as a hierarchical child of the named
// parent state.
func (b *Builder) ParentState(name string) *Builder {
	b.def.ParentState = name
	return b
}

// State adds a new state to the machine.
func (b *Builder) State(name State) *stateBuilder {
	state := &StateDefinition{
		Name:     name,
		Type:     StateTypeIntermediate,
		Behavior: StateBehaviorPersistent,
		Metadata: make(map[string]interface{}),
	}
	if _, exists := b.def.States[name]; exists && b.err == nil {
		b.err = fmt.Errorf("state %q defined twice", name)
	}
	b.def.States[name] = state
	return &stateBuilder{parent: b, state: state}
}

// Transition adds an exact-from transition.
func (b *Builder) Transition(from, to State) *transitionBuilder {
	return b.addTransition(StateRef(from), to)
}

// TransitionFromAny adds a wildcard-from transition, selectable from
// any state when no exact-from transition matches.
func (b *Builder) TransitionFromAny(to State) *transitionBuilder {
	return b.addTransition(StateRef(StateWildcard), to)
}

// TransitionFromNone adds a transition out of "no prior state".
func (b *Builder) TransitionFromNone(to State) *transitionBuilder {
	return b.addTransition(nil, to)
}

func (b *Builder) addTransition(from *State, to State) *transitionBuilder {
	transition := &TransitionDefinition{
		From:      from,
		To:        to,
		Type:      TransitionTypeManual,
		Behavior:  TransitionImmediate,
		GuardMode: GuardAll,
		Metadata:  make(map[string]interface{}),
	}
	b.def.Transitions = append(b.def.Transitions, transition)
	return &transitionBuilder{parent: b, transition: transition}
}

// Build validates and returns the definition.
func (b *Builder) Build() (*RuntimeDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machine definition: %w", err)
	}
	return b.def, nil
}

// MustBuild is Build that panics on error, for startup wiring.
func (b *Builder) MustBuild() *RuntimeDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// =============== stateBuilder methods ===============

// Type sets the state classification.
func (sb *stateBuilder) Type(t StateType) *stateBuilder {
	sb.state.Type = t
	return sb
}

// Behavior sets the persistence behavior.
func (sb *stateBuilder) Behavior(behavior StateBehavior) *stateBuilder {
	sb.state.Behavior = behavior
	return sb
}

// Category sets the free-form category label.
func (sb *stateBuilder) Category(category string) *stateBuilder {
	sb.state.Category = category
	return sb
}

// Description sets the state description.
func (sb *stateBuilder) Description(desc string) *stateBuilder {
	sb.state.Description = desc
	return sb
}

// Terminal marks the state as unexitable.
func (sb *stateBuilder) Terminal(terminal bool) *stateBuilder {
	sb.state.Terminal = terminal
	return sb
}

// Priority sets the state priority.
func (sb *stateBuilder) Priority(priority int) *stateBuilder {
	sb.state.Priority = priority
	return sb
}

// Metadata sets one metadata entry.
func (sb *stateBuilder) Metadata(key string, value interface{}) *stateBuilder {
	sb.state.Metadata[key] = value
	return sb
}

// OnEntry appends entry callbacks.
func (sb *stateBuilder) OnEntry(callbacks ...*Callback) *stateBuilder {
	for _, cb := range callbacks {
		if cb.Timing == "" {
			cb.Timing = CallbackOnEntry
		}
	}
	sb.state.OnEntry = append(sb.state.OnEntry, callbacks...)
	return sb
}

// OnEntryFunc appends a canonical entry callback.
func (sb *stateBuilder) OnEntryFunc(name string, fn CallbackFunc) *stateBuilder {
	return sb.OnEntry(CallbackOf(name, fn, CallbackOnEntry))
}

// OnExit appends exit callbacks.
func (sb *stateBuilder) OnExit(callbacks ...*Callback) *stateBuilder {
	for _, cb := range callbacks {
		if cb.Timing == "" {
			cb.Timing = CallbackOnExit
		}
	}
	sb.state.OnExit = append(sb.state.OnExit, callbacks...)
	return sb
}

// OnExitFunc appends a canonical exit callback.
func (sb *stateBuilder) OnExitFunc(name string, fn CallbackFunc) *stateBuilder {
	return sb.OnExit(CallbackOf(name, fn, CallbackOnExit))
}

// Done finishes this state and returns to the main builder.
func (sb *stateBuilder) Done() *Builder {
	return sb.parent
}

// =============== transitionBuilder methods ===============

// Event sets the triggering event name.
func (tb *transitionBuilder) Event(event string) *transitionBuilder {
	tb.transition.Event = event
	return tb
}

// Guard appends guards.
func (tb *transitionBuilder) Guard(guards ...*Guard) *transitionBuilder {
	tb.transition.Guards = append(tb.transition.Guards, guards...)
	return tb
}

// GuardFunc appends a canonical guard function.
func (tb *transitionBuilder) GuardFunc(name string, fn GuardFunc) *transitionBuilder {
	return tb.Guard(GuardOf(name, fn))
}

// Action appends actions.
func (tb *transitionBuilder) Action(actions ...*Action) *transitionBuilder {
	tb.transition.Actions = append(tb.transition.Actions, actions...)
	return tb
}

// ActionFunc appends a canonical action with the given timing.
func (tb *transitionBuilder) ActionFunc(name string, fn ActionFunc, timing ActionTiming) *transitionBuilder {
	return tb.Action(ActionOf(name, fn, timing))
}

// Callback appends transition callbacks.
func (tb *transitionBuilder) Callback(callbacks ...*Callback) *transitionBuilder {
	for _, cb := range callbacks {
		if cb.Timing == "" {
			cb.Timing = CallbackOnTransition
		}
	}
	tb.transition.OnTransition = append(tb.transition.OnTransition, callbacks...)
	return tb
}

// CallbackFunc appends a canonical transition callback.
func (tb *transitionBuilder) CallbackFunc(name string, fn CallbackFunc) *transitionBuilder {
	return tb.Callback(CallbackOf(name, fn, CallbackOnTransition))
}

// Type sets the transition classification.
func (tb *transitionBuilder) Type(t TransitionType) *transitionBuilder {
	tb.transition.Type = t
	return tb
}

// Priority sets the selection priority.
func (tb *transitionBuilder) Priority(priority int) *transitionBuilder {
	tb.transition.Priority = priority
	return tb
}

// Behavior sets when side effects run.
func (tb *transitionBuilder) Behavior(behavior TransitionBehavior) *transitionBuilder {
	tb.transition.Behavior = behavior
	return tb
}

// GuardMode sets the guard evaluation strategy.
func (tb *transitionBuilder) GuardMode(mode GuardMode) *transitionBuilder {
	tb.transition.GuardMode = mode
	return tb
}

// Metadata sets one metadata entry.
func (tb *transitionBuilder) Metadata(key string, value interface{}) *transitionBuilder {
	tb.transition.Metadata[key] = value
	return tb
}

// Name sets the transition's display name.
func (tb *transitionBuilder) Name(name string) *transitionBuilder {
	return tb.Metadata("name", name)
}

// Reversible marks the transition as reversible.
func (tb *transitionBuilder) Reversible(reversible bool) *transitionBuilder {
	tb.transition.Reversible = reversible
	return tb
}

// Timeout sets the advisory timeout. The engine does not enforce it;
// callers cancel through their context.
func (tb *transitionBuilder) Timeout(timeout time.Duration) *transitionBuilder {
	tb.transition.Timeout = timeout
	return tb
}

// Description sets the transition description.
func (tb *transitionBuilder) Description(desc string) *transitionBuilder {
	tb.transition.Description = desc
	return tb
}

// Done finishes this transition and returns to the main builder.
func (tb *transitionBuilder) Done() *Builder {
	return tb.parent
}
