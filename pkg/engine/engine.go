// Package engine executes transitions against registered machine
// definitions: it selects the transition, evaluates guards, runs
// callbacks and actions around an optimistic compare-and-swap state
// write, and feeds the transition log, event log, bus, and metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/statorio/stator/pkg/bus"
	"github.com/statorio/stator/pkg/config"
	"github.com/statorio/stator/pkg/container"
	"github.com/statorio/stator/pkg/entity"
	"github.com/statorio/stator/pkg/eventlog"
	"github.com/statorio/stator/pkg/fsm"
	"github.com/statorio/stator/pkg/fsmlog"
	"github.com/statorio/stator/pkg/logging"
	"github.com/statorio/stator/pkg/metrics"
	"github.com/statorio/stator/pkg/queue"
)

// Engine drives transitions for every machine in its registry. Safe
// for concurrent use; per-row races resolve through the CAS write.
type Engine struct {
	registry   *fsm.Registry
	dispatcher bus.Dispatcher
	translog   *fsmlog.Logger
	events     eventlog.Store
	metrics    *metrics.Recorder
	queue      queue.Queue
	container  *container.Container
	cfg        config.Config
	log        logging.Logger
	actor      ActorResolver
	txRunner   TxRunner
	clock      func() time.Time
	tracer     trace.Tracer
}

// New builds an engine around a registry. Unset options default to
// no-ops so a bare engine still performs transitions.
func New(registry *fsm.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:   registry,
		dispatcher: bus.NopDispatcher{},
		cfg:        config.DefaultConfig(),
		log:        logging.NewNopLogger(),
		clock:      time.Now,
		tracer:     noop.NewTracerProvider().Tracer("stator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome is the structured result of a dry run.
type Outcome struct {
	CanTransition bool    `json:"can_transition"`
	FromState     *string `json:"from_state"`
	ToState       string  `json:"to_state"`
	Reason        string  `json:"reason,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// CurrentState resolves the canonical state of an entity's column:
// a null attribute means the definition's initial state.
func (e *Engine) CurrentState(model entity.Entity, def *fsm.RuntimeDefinition) *fsm.State {
	if s := fsm.Canonical(model.Attribute(def.Column)); s != nil {
		return s
	}
	return def.Initial
}

// performResult carries what execute learned back to Perform.
type performResult struct {
	transition *fsm.TransitionDefinition
	noop       bool
	duration   time.Duration
}

// Perform runs one transition attempt through the full phase order:
// attempt event, selection, guards, exit/transition/action hooks,
// CAS persist, entry hooks, logs, success events, metrics. On any
// failure after selection it publishes the failure, logs it, counts
// it, and returns the coded error.
func (e *Engine) Perform(ctx context.Context, model entity.Entity, column string, target fsm.State, opts ...PerformOption) (entity.Entity, error) {
	started := e.clock()

	def, err := e.registry.Get(model.MorphClass(), column)
	if err != nil {
		return nil, err
	}

	raw := fsm.Canonical(model.Attribute(column))
	current := raw
	if current == nil {
		current = def.Initial
	}

	input := &fsm.TransitionInput{
		Model:     model,
		From:      current,
		To:        target,
		Timestamp: started,
	}
	for _, opt := range opts {
		opt(input)
	}
	if err := input.Normalize(); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, def, input)
	defer span.End()

	e.publish(ctx, bus.TransitionAttempted{
		ModelClass: def.ModelClass,
		ModelKey:   model.Key(),
		Column:     column,
		FromState:  stateString(current),
		ToState:    string(input.To),
		Context:    input.ContextMap(),
	})

	res := &performResult{}
	run := func(ctx context.Context) error {
		return e.execute(ctx, def, raw, input, started, res)
	}
	if e.cfg.UseTransactions && e.txRunner != nil && !input.DryRun {
		err = e.txRunner(ctx, run)
	} else {
		err = run(ctx)
	}

	if err != nil {
		if input.DryRun {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		e.failed(ctx, def, res.transition, input, err, started)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if res.noop || input.DryRun {
		return model, nil
	}

	e.succeeded(ctx, def, res.transition, input, res.duration)
	span.SetAttributes(attribute.String("fsm.outcome", "succeeded"))
	return model, nil
}

// execute covers selection through log writes. It runs inside the
// transaction when one is configured, so a failure in any phase rolls
// the state write back.
func (e *Engine) execute(ctx context.Context, def *fsm.RuntimeDefinition, raw *fsm.State, input *fsm.TransitionInput, started time.Time, res *performResult) error {
	t := def.FindTo(input.From, input.To, input.Event)
	if t == nil {
		if fsm.StatesEqual(input.From, fsm.StateRef(input.To)) {
			res.noop = true
			return nil
		}
		return e.coded(fsm.ErrorCodeInvalidTransition, "no transition", def, input, "selection")
	}
	res.transition = t

	if err := e.evalGuards(ctx, def, t, input); err != nil {
		return err
	}
	if input.DryRun {
		return nil
	}

	if input.From != nil {
		if s := def.StateDef(*input.From); s != nil {
			if err := e.runCallbacks(ctx, def, input, s.OnExit, "on_exit"); err != nil {
				return err
			}
		}
	}
	if err := e.runTransitionCallbacks(ctx, def, input, t, fsm.CallbackOnTransition, false); err != nil {
		return err
	}
	if err := e.runActions(ctx, def, t, input, false); err != nil {
		return err
	}
	if err := e.runTransitionCallbacks(ctx, def, input, t, fsm.CallbackBeforeSave, false); err != nil {
		return err
	}

	if err := e.persist(ctx, def, raw, input); err != nil {
		return err
	}

	if err := e.runTransitionCallbacks(ctx, def, input, t, fsm.CallbackAfterSave, false); err != nil {
		return err
	}
	if err := e.runTransitionCallbacks(ctx, def, input, t, fsm.CallbackOnTransition, true); err != nil {
		return err
	}
	if err := e.runActions(ctx, def, t, input, true); err != nil {
		return err
	}
	if s := def.StateDef(input.To); s != nil {
		if err := e.runCallbacks(ctx, def, input, s.OnEntry, "on_entry"); err != nil {
			return err
		}
	}

	res.duration = e.clock().Sub(started)
	durationMs := uint64(res.duration.Milliseconds())

	if e.translog != nil {
		if err := e.translog.LogSuccess(ctx, def.Column, input, durationMs); err != nil {
			return err
		}
	}
	if e.events != nil && e.cfg.EventLogging.Enabled {
		if err := e.appendEventLog(ctx, def, t, input); err != nil {
			return err
		}
	}
	return nil
}

// persist writes the new state. Existing rows go through the CAS
// update against the raw stored value (NULL when the column was never
// set); zero affected rows means another writer won the race.
func (e *Engine) persist(ctx context.Context, def *fsm.RuntimeDefinition, raw *fsm.State, input *fsm.TransitionInput) error {
	model := input.Model
	next := string(input.To)

	if !model.Exists() {
		model.SetAttribute(def.Column, next)
		if err := model.Save(ctx); err != nil {
			return fmt.Errorf("failed to save entity: %w", err)
		}
		return nil
	}

	rows, err := model.UpdateWhere(ctx, def.Column, stateString(raw), next)
	if err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	if rows == 0 {
		return e.coded(fsm.ErrorCodeConcurrentModification,
			"state column changed concurrently", def, input, "persist")
	}
	model.SetAttribute(def.Column, next)
	return nil
}

func (e *Engine) succeeded(ctx context.Context, def *fsm.RuntimeDefinition, t *fsm.TransitionDefinition, input *fsm.TransitionInput, duration time.Duration) {
	e.publish(ctx, bus.TransitionSucceeded{
		ModelClass: def.ModelClass,
		ModelKey:   input.Model.Key(),
		Column:     def.Column,
		FromState:  stateString(input.From),
		ToState:    string(input.To),
	})

	if e.cfg.Verbs.DispatchTransitionedVerb {
		e.publish(ctx, bus.StateTransitioned{
			ModelClass:     def.ModelClass,
			ModelKey:       input.Model.Key(),
			Column:         def.Column,
			FromState:      stateString(input.From),
			ToState:        string(input.To),
			TransitionName: t.Name(),
			Timestamp:      e.clock(),
			Context:        input.ContextMap(),
			Metadata:       e.eventMetadata(ctx, input),
		})
	}

	e.recordMetric(ctx, def, input, true, duration)
}

func (e *Engine) failed(ctx context.Context, def *fsm.RuntimeDefinition, t *fsm.TransitionDefinition, input *fsm.TransitionInput, cause error, started time.Time) {
	if t != nil {
		e.runFailureActions(ctx, def, t, input)
	}

	e.publish(ctx, bus.TransitionFailed{
		ModelClass: def.ModelClass,
		ModelKey:   input.Model.Key(),
		Column:     def.Column,
		FromState:  stateString(input.From),
		ToState:    string(input.To),
		Context:    input.ContextMap(),
		Exception:  cause.Error(),
	})

	elapsed := e.clock().Sub(started)
	if e.translog != nil {
		e.translog.LogFailure(ctx, def.Column, input, cause, uint64(elapsed.Milliseconds()))
	}
	e.recordMetric(ctx, def, input, false, elapsed)
}

// eventMetadata copies the attempt metadata, attributing the acting
// subject when configured and resolvable.
func (e *Engine) eventMetadata(ctx context.Context, input *fsm.TransitionInput) map[string]interface{} {
	md := input.Metadata
	if !e.cfg.Verbs.LogUserSubject || e.actor == nil {
		return md
	}
	id, typ, ok := e.actor(ctx)
	if !ok {
		return md
	}
	out := make(map[string]interface{}, len(md)+2)
	for k, v := range md {
		out[k] = v
	}
	out["subject_id"] = id
	out["subject_type"] = typ
	return out
}

func (e *Engine) appendEventLog(ctx context.Context, def *fsm.RuntimeDefinition, t *fsm.TransitionDefinition, input *fsm.TransitionInput) error {
	now := e.clock()
	name := t.Name()
	return e.events.Append(ctx, &eventlog.Record{
		ID:             uuid.NewString(),
		ModelID:        input.Model.Key(),
		ModelType:      input.Model.MorphClass(),
		Column:         def.Column,
		FromState:      stateString(input.From),
		ToState:        string(input.To),
		TransitionName: &name,
		OccurredAt:     now,
		Context:        input.ContextMap(),
		Metadata:       input.Metadata,
		CreatedAt:      now,
	})
}

// DryRun evaluates a transition through guards only, with no
// persistence and no success or failure events. Structured failures
// fold into the outcome; anything else propagates after being logged.
func (e *Engine) DryRun(ctx context.Context, model entity.Entity, column string, target fsm.State, opts ...PerformOption) (*Outcome, error) {
	opts = append(opts, WithMode(fsm.ModeDryRun))

	outcome := &Outcome{ToState: string(target)}
	if def, err := e.registry.Get(model.MorphClass(), column); err == nil {
		outcome.FromState = stateString(e.CurrentState(model, def))
	}

	_, err := e.Perform(ctx, model, column, target, opts...)
	if err == nil {
		outcome.CanTransition = true
		return outcome, nil
	}

	var fe *fsm.Error
	if errors.As(err, &fe) {
		outcome.Reason = fe.Code.String()
		outcome.Message = fe.Message
		return outcome, nil
	}
	e.log.Errorf("dry run failed: %v", err)
	return nil, err
}

// CanTransition reports whether a dry run of the transition passes.
func (e *Engine) CanTransition(ctx context.Context, model entity.Entity, column string, target fsm.State, opts ...PerformOption) (bool, error) {
	outcome, err := e.DryRun(ctx, model, column, target, opts...)
	if err != nil {
		return false, err
	}
	return outcome.CanTransition, nil
}

// AvailableTransitions lists the transitions selectable from the
// entity's current state, exact-from matches first.
func (e *Engine) AvailableTransitions(model entity.Entity, column string) ([]*fsm.TransitionDefinition, error) {
	def, err := e.registry.Get(model.MorphClass(), column)
	if err != nil {
		return nil, err
	}
	return def.TransitionsFrom(e.CurrentState(model, def)), nil
}

// Registry exposes the definitions this engine serves.
func (e *Engine) Registry() *fsm.Registry {
	return e.registry
}

func (e *Engine) publish(ctx context.Context, event bus.Event) {
	if err := e.dispatcher.Dispatch(ctx, event); err != nil {
		e.log.Errorf("failed to publish %s: %v", event.Address(), err)
	}
}

func (e *Engine) recordMetric(ctx context.Context, def *fsm.RuntimeDefinition, input *fsm.TransitionInput, successful bool, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(ctx, metrics.Sample{
		ModelClass: def.ModelClass,
		ModelKey:   input.Model.Key(),
		Column:     def.Column,
		FromState:  stateString(input.From),
		ToState:    string(input.To),
		Successful: successful,
		Duration:   duration,
		Context:    input.ContextMap(),
	})
}

func (e *Engine) startSpan(ctx context.Context, def *fsm.RuntimeDefinition, input *fsm.TransitionInput) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "fsm.transition", trace.WithAttributes(
		attribute.String("fsm.model", def.ModelClass),
		attribute.String("fsm.column", def.Column),
		attribute.String("fsm.from", input.FromString()),
		attribute.String("fsm.to", string(input.To)),
		attribute.String("fsm.event", input.Event),
	))
}

func (e *Engine) coded(code fsm.ErrorCode, msg string, def *fsm.RuntimeDefinition, input *fsm.TransitionInput, phase string) *fsm.Error {
	err := fsm.NewError(code, msg)
	err.ModelClass = def.ModelClass
	err.Column = def.Column
	err.From = input.From
	err.To = input.To
	err.Phase = phase
	return err
}

func stateString(s *fsm.State) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
