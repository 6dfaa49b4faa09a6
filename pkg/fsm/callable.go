package fsm

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// GuardFunc is the canonical guard signature. A transition proceeds
// only when the guard returns exactly true with a nil error.
type GuardFunc func(ctx context.Context, input *TransitionInput) (bool, error)

// ActionFunc is the canonical action signature.
type ActionFunc func(ctx context.Context, input *TransitionInput) error

// CallbackFunc is the canonical callback signature.
type CallbackFunc func(ctx context.Context, input *TransitionInput) error

// CallableKind tags the four supported callable reference forms.
type CallableKind int

const (
	// CallableKindFunc is a Go function value.
	CallableKindFunc CallableKind = iota

	// CallableKindNamed is a service name resolved from the container
	// and invoked directly (the service must be callable or expose a
	// Handle/Invoke/Call/Execute method).
	CallableKindNamed

	// CallableKindBound is a receiver plus a method name.
	CallableKindBound

	// CallableKindService is a "Name@Method" reference resolved from
	// the container.
	CallableKindService
)

// Callable is a variant-typed reference to user code. Exactly one of
// the four kinds is populated; construction goes through the
// CallableFunc/CallableNamed/CallableBound/CallableService helpers.
type Callable struct {
	kind   CallableKind
	fn     interface{}
	name   string
	recv   interface{}
	method string
}

// CallableFunc wraps a Go function value.
func CallableFunc(fn interface{}) Callable {
	return Callable{kind: CallableKindFunc, fn: fn}
}

// CallableNamed references a container-registered service by name.
func CallableNamed(name string) Callable {
	return Callable{kind: CallableKindNamed, name: name}
}

// CallableBound references a method on an existing receiver.
func CallableBound(recv interface{}, method string) Callable {
	return Callable{kind: CallableKindBound, recv: recv, method: method}
}

// CallableService references a container service method via a
// "Name@Method" spec.
func CallableService(spec string) Callable {
	name, method := spec, ""
	if idx := strings.Index(spec, "@"); idx >= 0 {
		name, method = spec[:idx], spec[idx+1:]
	}
	return Callable{kind: CallableKindService, name: name, method: method}
}

func (c Callable) Kind() CallableKind { return c.kind }

// Func returns the wrapped function value for CallableKindFunc.
func (c Callable) Func() interface{} { return c.fn }

// ServiceName returns the container name for named and service kinds.
func (c Callable) ServiceName() string { return c.name }

// Receiver returns the bound receiver for CallableKindBound.
func (c Callable) Receiver() interface{} { return c.recv }

// Method returns the method name for bound and service kinds.
func (c Callable) Method() string { return c.method }

// QueueSpec returns the serializable reference for queued dispatch.
// Function values and bound receivers cannot cross the queue boundary.
func (c Callable) QueueSpec() (string, error) {
	switch c.kind {
	case CallableKindNamed:
		return c.name, nil
	case CallableKindService:
		if c.method == "" {
			return c.name, nil
		}
		return c.name + "@" + c.method, nil
	default:
		return "", NewError(ErrorCodeLogic,
			"queued callables must reference a registered service, not a closure or bound instance")
	}
}

func (c Callable) String() string {
	switch c.kind {
	case CallableKindFunc:
		if c.fn == nil {
			return "func(nil)"
		}
		return "func(" + reflect.TypeOf(c.fn).String() + ")"
	case CallableKindNamed:
		return c.name
	case CallableKindBound:
		if c.recv == nil {
			return "bound(nil)." + c.method
		}
		return reflect.TypeOf(c.recv).String() + "." + c.method
	case CallableKindService:
		if c.method == "" {
			return c.name
		}
		return c.name + "@" + c.method
	default:
		return "callable(unknown)"
	}
}

// Guard wraps a callable evaluated before a transition commits.
type Guard struct {
	Name          string
	Callable      Callable
	Params        map[string]interface{}
	Priority      int
	StopOnFailure bool
}

// Action wraps a callable executed around the persistence phase.
type Action struct {
	Name     string
	Callable Callable
	Params   map[string]interface{}
	Priority int
	RunAfter bool
	Timing   ActionTiming
}

// Callback wraps a lifecycle callable (state entry/exit, transition).
type Callback struct {
	Name              string
	Callable          Callable
	Params            map[string]interface{}
	Priority          int
	RunAfter          bool
	Timing            CallbackTiming
	ContinueOnFailure bool
	Queued            bool
}

// GuardOf builds a Guard around a canonical guard function.
func GuardOf(name string, fn GuardFunc) *Guard {
	return &Guard{Name: name, Callable: CallableFunc(fn)}
}

// ActionOf builds an Action around a canonical action function.
func ActionOf(name string, fn ActionFunc, timing ActionTiming) *Action {
	return &Action{Name: name, Callable: CallableFunc(fn), Timing: timing, RunAfter: timing == ActionAfter || timing == ActionOnSuccess}
}

// CallbackOf builds a Callback around a canonical callback function.
func CallbackOf(name string, fn CallbackFunc, timing CallbackTiming) *Callback {
	return &Callback{Name: name, Callable: CallableFunc(fn), Timing: timing}
}

// Label returns the human name used in error messages and logs.
func (g *Guard) Label() string {
	if g.Name != "" {
		return g.Name
	}
	return g.Callable.String()
}

func (a *Action) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Callable.String()
}

func (cb *Callback) Label() string {
	if cb.Name != "" {
		return cb.Name
	}
	return cb.Callable.String()
}

// =============== Common Guard Functions ===============

// AlwaysAllow is a guard that always allows the transition.
func AlwaysAllow() GuardFunc {
	return func(ctx context.Context, input *TransitionInput) (bool, error) {
		return true, nil
	}
}

// NeverAllow is a guard that never allows the transition.
func NeverAllow() GuardFunc {
	return func(ctx context.Context, input *TransitionInput) (bool, error) {
		return false, nil
	}
}

// ContextFieldEquals allows the transition when a context field equals
// the given value.
func ContextFieldEquals(field string, value interface{}) GuardFunc {
	return func(ctx context.Context, input *TransitionInput) (bool, error) {
		m := input.ContextMap()
		if m == nil {
			return false, nil
		}
		fieldValue, ok := m[field]
		if !ok {
			return false, nil
		}
		return fieldValue == value, nil
	}
}

// ContextFieldExists allows the transition when a context field is set.
func ContextFieldExists(field string) GuardFunc {
	return func(ctx context.Context, input *TransitionInput) (bool, error) {
		m := input.ContextMap()
		if m == nil {
			return false, nil
		}
		_, ok := m[field]
		return ok, nil
	}
}

// AndGuard combines guards with AND logic.
func AndGuard(guards ...GuardFunc) GuardFunc {
	return func(ctx context.Context, input *TransitionInput) (bool, error) {
		for _, guard := range guards {
			allowed, err := guard(ctx, input)
			if err != nil {
				return false, err
			}
			if !allowed {
				return false, nil
			}
		}
		return true, nil
	}
}

// OrGuard combines guards with OR logic.
func OrGuard(guards ...GuardFunc) GuardFunc {
	return func(ctx context.Context, input *TransitionInput) (bool, error) {
		for _, guard := range guards {
			allowed, err := guard(ctx, input)
			if err != nil {
				return false, err
			}
			if allowed {
				return true, nil
			}
		}
		return false, nil
	}
}

// NotGuard inverts a guard.
func NotGuard(guard GuardFunc) GuardFunc {
	return func(ctx context.Context, input *TransitionInput) (bool, error) {
		allowed, err := guard(ctx, input)
		if err != nil {
			return false, err
		}
		return !allowed, nil
	}
}

// =============== Common Action Functions ===============

// NoOpAction is an action that does nothing.
func NoOpAction() ActionFunc {
	return func(ctx context.Context, input *TransitionInput) error {
		return nil
	}
}

// LogAction creates an action that logs the transition.
func LogAction(logger func(msg string)) ActionFunc {
	return func(ctx context.Context, input *TransitionInput) error {
		from := "null"
		if input.From != nil {
			from = string(*input.From)
		}
		logger(fmt.Sprintf("Transition: %s -> %s (event: %s)", from, input.To, input.Event))
		return nil
	}
}

// ChainActions chains multiple actions together.
func ChainActions(actions ...ActionFunc) ActionFunc {
	return func(ctx context.Context, input *TransitionInput) error {
		for _, action := range actions {
			if err := action(ctx, input); err != nil {
				return err
			}
		}
		return nil
	}
}
