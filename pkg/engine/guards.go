package engine

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/statorio/stator/pkg/fsm"
)

// checkGuard evaluates one guard. The result counts as a pass only
// when the first return value is the boolean true; every other value
// denies.
func (e *Engine) checkGuard(ctx context.Context, g *fsm.Guard, input *fsm.TransitionInput) (bool, error) {
	if g.Callable.Kind() == fsm.CallableKindFunc {
		switch fn := g.Callable.Func().(type) {
		case fsm.GuardFunc:
			return fn(ctx, input)
		case func(context.Context, *fsm.TransitionInput) (bool, error):
			return fn(ctx, input)
		}
	}

	results, err := e.invoke(ctx, g.Callable, g.Params, input)
	if err != nil {
		return false, err
	}
	if err := lastError(results); err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, nil
	}
	v := results[0]
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	return v.Kind() == reflect.Bool && v.Bool(), nil
}

// evalGuards applies the transition's guard strategy. Guards run in
// priority order, highest first; the sort is stable so equal
// priorities keep definition order.
func (e *Engine) evalGuards(ctx context.Context, def *fsm.RuntimeDefinition, t *fsm.TransitionDefinition, input *fsm.TransitionInput) error {
	if len(t.Guards) == 0 {
		return nil
	}

	guards := make([]*fsm.Guard, len(t.Guards))
	copy(guards, t.Guards)
	sort.SliceStable(guards, func(i, j int) bool {
		return guards[i].Priority > guards[j].Priority
	})

	mode := t.GuardMode
	if mode == "" {
		mode = fsm.GuardAll
	}

	switch mode {
	case fsm.GuardAny:
		return e.evalGuardsAny(ctx, def, guards, input)
	case fsm.GuardFirst:
		return e.evalGuardsFirst(ctx, def, guards, input)
	default:
		return e.evalGuardsAll(ctx, def, guards, input)
	}
}

func (e *Engine) evalGuardsAll(ctx context.Context, def *fsm.RuntimeDefinition, guards []*fsm.Guard, input *fsm.TransitionInput) error {
	var failures []string
	for _, g := range guards {
		pass, err := e.checkGuard(ctx, g, input)
		if err != nil {
			if g.StopOnFailure {
				return e.guardException(def, input, g, err)
			}
			failures = append(failures, fmt.Sprintf("%s: %v", g.Label(), err))
			continue
		}
		if !pass {
			if g.StopOnFailure {
				return e.guardDenied(def, input, fmt.Sprintf("guard %s denied the transition", g.Label()))
			}
			failures = append(failures, g.Label())
		}
	}
	if len(failures) > 0 {
		return e.guardDenied(def, input, "guards denied the transition: "+strings.Join(failures, "; "))
	}
	return nil
}

func (e *Engine) evalGuardsAny(ctx context.Context, def *fsm.RuntimeDefinition, guards []*fsm.Guard, input *fsm.TransitionInput) error {
	for _, g := range guards {
		pass, err := e.checkGuard(ctx, g, input)
		if err != nil {
			if g.StopOnFailure {
				return e.guardException(def, input, g, err)
			}
			e.log.Warnf("guard %s failed: %v", g.Label(), err)
			continue
		}
		if pass {
			return nil
		}
	}
	return e.guardDenied(def, input, "all guards failed")
}

func (e *Engine) evalGuardsFirst(ctx context.Context, def *fsm.RuntimeDefinition, guards []*fsm.Guard, input *fsm.TransitionInput) error {
	for _, g := range guards {
		pass, err := e.checkGuard(ctx, g, input)
		if err != nil {
			if g.StopOnFailure {
				return e.guardException(def, input, g, err)
			}
			e.log.Warnf("guard %s failed, skipping: %v", g.Label(), err)
			continue
		}
		if pass {
			return nil
		}
		return e.guardDenied(def, input, fmt.Sprintf("guard %s denied the transition", g.Label()))
	}
	return e.guardDenied(def, input, "no guard produced a decision")
}

func (e *Engine) guardDenied(def *fsm.RuntimeDefinition, input *fsm.TransitionInput, msg string) error {
	err := fsm.NewError(fsm.ErrorCodeGuardFailed, msg)
	err.ModelClass = def.ModelClass
	err.Column = def.Column
	err.From = input.From
	err.To = input.To
	err.Phase = "guards"
	return err
}

func (e *Engine) guardException(def *fsm.RuntimeDefinition, input *fsm.TransitionInput, g *fsm.Guard, cause error) error {
	err := fsm.NewError(fsm.ErrorCodeCallbackFailed, fmt.Sprintf("guard %s failed", g.Label()))
	err.ModelClass = def.ModelClass
	err.Column = def.Column
	err.From = input.From
	err.To = input.To
	err.Phase = "guards"
	err.Cause = cause
	return err
}
