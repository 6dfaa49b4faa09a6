package engine

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/statorio/stator/pkg/entity"
	"github.com/statorio/stator/pkg/fsm"
)

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	inputType  = reflect.TypeOf((*fsm.TransitionInput)(nil))
	entityType = reflect.TypeOf((*entity.Entity)(nil)).Elem()
	dtoType    = reflect.TypeOf((*fsm.ContextDTO)(nil)).Elem()
	mapType    = reflect.TypeOf(map[string]interface{}{})
	errType    = reflect.TypeOf((*error)(nil)).Elem()
)

// methodNames are tried in order when a named service is invoked
// without an explicit method.
var methodNames = []string{"Handle", "Invoke", "Call", "Execute"}

// mergeParams builds the effective parameter map for one invocation:
// callable-level params, overlaid by per-attempt params, plus the
// input itself under "input".
func mergeParams(callableParams, attemptParams map[string]interface{}, input *fsm.TransitionInput) map[string]interface{} {
	merged := make(map[string]interface{}, len(callableParams)+len(attemptParams)+1)
	for k, v := range callableParams {
		merged[k] = v
	}
	for k, v := range attemptParams {
		merged[k] = v
	}
	merged["input"] = input
	return merged
}

// invoke dispatches a callable reference with resolved parameters and
// returns the raw results. Panics in user code surface as
// CallbackFailed errors.
func (e *Engine) invoke(ctx context.Context, c fsm.Callable, params map[string]interface{}, input *fsm.TransitionInput) (results []reflect.Value, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			failure := fsm.NewError(fsm.ErrorCodeCallbackFailed,
				fmt.Sprintf("callable %s panicked: %v", c.String(), rec))
			results, err = nil, failure
		}
	}()

	merged := mergeParams(params, input.Params, input)

	switch c.Kind() {
	case fsm.CallableKindFunc:
		fn := c.Func()
		if fn == nil {
			return nil, fsm.NewError(fsm.ErrorCodeLogic, "callable wraps a nil function")
		}
		return e.call(ctx, reflect.ValueOf(fn), merged, input)

	case fsm.CallableKindNamed:
		svc, err := e.service(c.ServiceName())
		if err != nil {
			return nil, err
		}
		v := reflect.ValueOf(svc)
		if v.Kind() == reflect.Func {
			return e.call(ctx, v, merged, input)
		}
		for _, name := range methodNames {
			if m := v.MethodByName(name); m.IsValid() {
				return e.call(ctx, m, merged, input)
			}
		}
		return nil, fsm.NewError(fsm.ErrorCodeLogic,
			fmt.Sprintf("service %q is not callable and has no Handle/Invoke/Call/Execute method", c.ServiceName()))

	case fsm.CallableKindBound:
		recv := c.Receiver()
		if recv == nil {
			return nil, fsm.NewError(fsm.ErrorCodeLogic, "bound callable has a nil receiver")
		}
		m := reflect.ValueOf(recv).MethodByName(c.Method())
		if !m.IsValid() {
			return nil, fsm.NewError(fsm.ErrorCodeLogic,
				fmt.Sprintf("method %q not found on %T", c.Method(), recv))
		}
		return e.call(ctx, m, merged, input)

	case fsm.CallableKindService:
		svc, err := e.service(c.ServiceName())
		if err != nil {
			return nil, err
		}
		if c.Method() == "" {
			v := reflect.ValueOf(svc)
			if v.Kind() == reflect.Func {
				return e.call(ctx, v, merged, input)
			}
			for _, name := range methodNames {
				if m := v.MethodByName(name); m.IsValid() {
					return e.call(ctx, m, merged, input)
				}
			}
			return nil, fsm.NewError(fsm.ErrorCodeLogic,
				fmt.Sprintf("service %q is not callable", c.ServiceName()))
		}
		m := reflect.ValueOf(svc).MethodByName(c.Method())
		if !m.IsValid() {
			return nil, fsm.NewError(fsm.ErrorCodeLogic,
				fmt.Sprintf("method %q not found on service %q", c.Method(), c.ServiceName()))
		}
		return e.call(ctx, m, merged, input)

	default:
		return nil, fsm.NewError(fsm.ErrorCodeLogic, "unknown callable kind")
	}
}

func (e *Engine) service(name string) (interface{}, error) {
	if e.container == nil {
		return nil, fsm.NewError(fsm.ErrorCodeLogic,
			fmt.Sprintf("service %q requires a container, none is configured", name))
	}
	svc, ok := e.container.Resolve(name)
	if !ok {
		return nil, fsm.NewError(fsm.ErrorCodeLogic,
			fmt.Sprintf("service %q is not registered in the container", name))
	}
	return svc, nil
}

// call resolves each formal parameter of fn and invokes it. Variadic
// targets receive their fixed parameters only.
func (e *Engine) call(ctx context.Context, fn reflect.Value, merged map[string]interface{}, input *fsm.TransitionInput) ([]reflect.Value, error) {
	t := fn.Type()
	if t.Kind() != reflect.Func {
		return nil, fsm.NewError(fsm.ErrorCodeLogic,
			fmt.Sprintf("callable target is %s, not a function", t.Kind()))
	}

	n := t.NumIn()
	if t.IsVariadic() {
		n--
	}
	args := make([]reflect.Value, n)
	for i := 0; i < n; i++ {
		arg, err := e.resolveArg(ctx, i, t.In(i), merged, input)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return fn.Call(args), nil
}

// resolveArg fills one formal parameter: positional key, then
// well-known types, then container lookup by type.
func (e *Engine) resolveArg(ctx context.Context, i int, argType reflect.Type, merged map[string]interface{}, input *fsm.TransitionInput) (reflect.Value, error) {
	if v, ok := merged[strconv.Itoa(i)]; ok {
		return coerce(i, v, argType)
	}

	switch argType {
	case ctxType:
		return reflect.ValueOf(ctx), nil
	case inputType:
		return reflect.ValueOf(input), nil
	case mapType:
		return reflect.ValueOf(merged), nil
	}
	if argType == entityType && input.Model != nil {
		return reflect.ValueOf(input.Model), nil
	}
	if argType == dtoType {
		if input.Context == nil {
			return reflect.Zero(argType), nil
		}
		return reflect.ValueOf(input.Context), nil
	}

	if e.container != nil {
		if svc, ok := e.container.ResolveType(argType); ok {
			return reflect.ValueOf(svc), nil
		}
	}

	return reflect.Value{}, fsm.NewError(fsm.ErrorCodeMissingParameter,
		fmt.Sprintf("cannot resolve parameter %d (%s)", i, argType))
}

// coerce adapts a supplied parameter value to the formal type. Nil
// passes through as the zero value: present-but-nil is distinct from
// missing. Numeric widths convert (JSON decoding yields float64);
// anything else must be assignable.
func coerce(i int, v interface{}, argType reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(argType), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(argType) {
		return rv, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(argType.Kind()) {
		return rv.Convert(argType), nil
	}
	return reflect.Value{}, fsm.NewError(fsm.ErrorCodeMissingParameter,
		fmt.Sprintf("parameter %d: cannot use %T as %s", i, v, argType))
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// lastError extracts a non-nil error from the final result, following
// the Go convention of error-last returns.
func lastError(results []reflect.Value) error {
	if len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	if !last.Type().Implements(errType) {
		return nil
	}
	if last.IsNil() {
		return nil
	}
	return last.Interface().(error)
}
