package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/statorio/stator/pkg/fsm"
	"github.com/statorio/stator/pkg/queue"
)

// runCallbacks executes a state's entry or exit callbacks in
// definition order.
func (e *Engine) runCallbacks(ctx context.Context, def *fsm.RuntimeDefinition, input *fsm.TransitionInput, cbs []*fsm.Callback, phase string) error {
	for _, cb := range cbs {
		if err := e.runCallback(ctx, def, input, cb, phase); err != nil {
			return err
		}
	}
	return nil
}

// runTransitionCallbacks executes the transition callbacks matching a
// timing. For the on_transition timing, after selects the
// post-persistence half.
func (e *Engine) runTransitionCallbacks(ctx context.Context, def *fsm.RuntimeDefinition, input *fsm.TransitionInput, t *fsm.TransitionDefinition, timing fsm.CallbackTiming, after bool) error {
	for _, cb := range t.OnTransition {
		cbTiming := cb.Timing
		if cbTiming == "" {
			cbTiming = fsm.CallbackOnTransition
		}
		if cbTiming != timing {
			continue
		}
		if timing == fsm.CallbackOnTransition && cb.RunAfter != after {
			continue
		}
		if err := e.runCallback(ctx, def, input, cb, string(cbTiming)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runCallback(ctx context.Context, def *fsm.RuntimeDefinition, input *fsm.TransitionInput, cb *fsm.Callback, phase string) error {
	var err error
	if cb.Queued {
		err = e.enqueue(ctx, def, input, cb.Callable, cb.Params)
	} else {
		var results []reflect.Value
		results, err = e.invoke(ctx, cb.Callable, cb.Params, input)
		if err == nil {
			err = lastError(results)
		}
	}
	if err == nil {
		return nil
	}
	if cb.ContinueOnFailure {
		e.log.Errorf("%s callback %s failed, continuing: %v", phase, cb.Label(), err)
		return nil
	}
	return e.callbackFailed(def, input, phase, cb.Label(), err)
}

// runActions executes the transition actions of one half of the
// persistence boundary. Transitions declared queued enqueue their
// actions instead of invoking them inline.
func (e *Engine) runActions(ctx context.Context, def *fsm.RuntimeDefinition, t *fsm.TransitionDefinition, input *fsm.TransitionInput, after bool) error {
	for _, a := range t.Actions {
		if !actionInPhase(a, after) {
			continue
		}
		if err := e.runAction(ctx, def, t, input, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runAction(ctx context.Context, def *fsm.RuntimeDefinition, t *fsm.TransitionDefinition, input *fsm.TransitionInput, a *fsm.Action) error {
	if t.Behavior == fsm.TransitionQueued {
		return e.enqueue(ctx, def, input, a.Callable, a.Params)
	}
	results, err := e.invoke(ctx, a.Callable, a.Params, input)
	if err == nil {
		err = lastError(results)
	}
	if err != nil {
		return e.callbackFailed(def, input, string(a.Timing), a.Label(), err)
	}
	return nil
}

// runFailureActions executes on_failure actions on the failure path.
// Their own errors are logged and dropped so they cannot mask the
// original failure.
func (e *Engine) runFailureActions(ctx context.Context, def *fsm.RuntimeDefinition, t *fsm.TransitionDefinition, input *fsm.TransitionInput) {
	for _, a := range t.Actions {
		if a.Timing != fsm.ActionOnFailure {
			continue
		}
		if err := e.runAction(ctx, def, t, input, a); err != nil {
			e.log.Errorf("on_failure action %s failed: %v", a.Label(), err)
		}
	}
}

// actionInPhase buckets an action before or after persistence.
// on_success actions join the after bucket; on_failure actions never
// run on the success path.
func actionInPhase(a *fsm.Action, after bool) bool {
	switch a.Timing {
	case fsm.ActionBefore:
		return !after
	case fsm.ActionAfter, fsm.ActionOnSuccess:
		return after
	case fsm.ActionOnFailure:
		return false
	default:
		return a.RunAfter == after
	}
}

// enqueue hands a queued callable to the queue. Closures and bound
// receivers fail here, at dispatch time, because they cannot be
// serialized.
func (e *Engine) enqueue(ctx context.Context, def *fsm.RuntimeDefinition, input *fsm.TransitionInput, c fsm.Callable, params map[string]interface{}) error {
	spec, err := c.QueueSpec()
	if err != nil {
		var fe *fsm.Error
		if errors.As(err, &fe) {
			fe.ModelClass = def.ModelClass
			fe.Column = def.Column
			fe.From = input.From
			fe.To = input.To
		}
		return err
	}
	if e.queue == nil {
		return e.coded(fsm.ErrorCodeLogic,
			fmt.Sprintf("queued callable %s requires a queue, none is configured", spec), def, input, "queue")
	}
	if err := e.queue.Enqueue(ctx, queue.NewJob(spec, params, input, def.Column)); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", spec, err)
	}
	return nil
}

func (e *Engine) callbackFailed(def *fsm.RuntimeDefinition, input *fsm.TransitionInput, phase, label string, cause error) error {
	err := e.coded(fsm.ErrorCodeCallbackFailed,
		fmt.Sprintf("%s %s failed", phase, label), def, input, phase)
	err.Cause = cause
	return err
}
