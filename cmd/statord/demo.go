package main

import (
	"context"
	"fmt"

	"github.com/statorio/stator/pkg/container"
	"github.com/statorio/stator/pkg/engine"
	"github.com/statorio/stator/pkg/entity"
	"github.com/statorio/stator/pkg/eventlog"
	"github.com/statorio/stator/pkg/fsm"
	"github.com/statorio/stator/pkg/logging"
	"github.com/statorio/stator/pkg/queue"
)

// notifier is the sample queued service: it reports successful
// transitions after the fact.
type notifier struct {
	log logging.Logger
}

func (n *notifier) Handle(ctx context.Context, input *fsm.TransitionInput) error {
	n.log.Infof("order %s moved %s -> %s", input.Model.Key(), input.FromString(), input.To)
	return nil
}

// registerOrderMachine wires the demo machine: pending -> processing
// -> completed, with a cancel escape from every state.
func registerOrderMachine(registry *fsm.Registry, services *container.Container, log logging.Logger) {
	services.MustRegister("Notifier", &notifier{log: log})

	b := fsm.NewBuilder("Order", "status").
		Description("Demo order lifecycle").
		State("pending").Type(fsm.StateTypeInitial).Done().
		State("processing").Done().
		State("completed").Type(fsm.StateTypeFinal).Terminal(true).Done().
		State("cancelled").Type(fsm.StateTypeFinal).Terminal(true).Done().
		Initial("pending")

	b.Transition("pending", "processing").
		Event("process").
		GuardFunc("has-customer", func(ctx context.Context, input *fsm.TransitionInput) (bool, error) {
			return input.Model.Attribute("customer") != nil, nil
		}).
		Callback(&fsm.Callback{
			Name:     "notify",
			Callable: fsm.CallableService("Notifier@Handle"),
			Timing:   fsm.CallbackOnTransition,
			RunAfter: true,
			Queued:   true,
		}).
		Done()

	b.Transition("processing", "completed").
		Event("complete").
		ActionFunc("log-completion", func(ctx context.Context, input *fsm.TransitionInput) error {
			log.Infof("order %s completed", input.Model.Key())
			return nil
		}, fsm.ActionOnSuccess).
		Done()

	b.TransitionFromAny("cancelled").Event("cancel").Done()

	registry.MustRegister(b.MustBuild())
}

// runDemo performs a scripted order lifecycle and reads it back
// through the replay service.
func runDemo(ctx context.Context, eng *engine.Engine, orders *entity.MemoryStore, q queue.Queue, replay *eventlog.ReplayService, log logging.Logger) error {
	order, err := orders.Create(ctx, "Order", "1001", map[string]interface{}{
		"customer": "acme",
	})
	if err != nil {
		return fmt.Errorf("failed to create demo order: %w", err)
	}

	if _, err := eng.Perform(ctx, order, "status", "processing",
		engine.WithEvent("process"),
		engine.WithContext(fsm.MapContext{"amount": 249.90}),
		engine.WithSource(fsm.SourceSystem)); err != nil {
		return fmt.Errorf("failed to process order: %w", err)
	}
	if _, err := eng.Perform(ctx, order, "status", "completed",
		engine.WithEvent("complete")); err != nil {
		return fmt.Errorf("failed to complete order: %w", err)
	}

	// The notify callback was enqueued; drain it when the queue is the
	// in-process one.
	if mq, ok := q.(*queue.MemoryQueue); ok {
		if err := mq.Drain(ctx, engine.NewJobRunner(eng, storeFetcher(orders))); err != nil {
			return fmt.Errorf("failed to drain demo queue: %w", err)
		}
	}

	result, err := replay.Replay(ctx, "Order", order.Key(), "status")
	if err != nil {
		return fmt.Errorf("failed to replay demo order: %w", err)
	}
	log.Infof("demo order replay: initial=%v final=%v transitions=%d",
		deref(result.InitialState), deref(result.FinalState), result.TransitionCount)

	stats, err := replay.Statistics(ctx, "Order", order.Key(), "status")
	if err != nil {
		return fmt.Errorf("failed to compute demo statistics: %w", err)
	}
	log.Infof("demo order statistics: states=%d frequency=%v",
		stats.UniqueStates, stats.TransitionFrequency)
	return nil
}

// storeFetcher refetches entities for queued jobs out of the
// in-memory store.
func storeFetcher(orders *entity.MemoryStore) engine.EntityFetcher {
	return func(ctx context.Context, modelType, modelID string) (entity.Entity, error) {
		model, found := orders.Find(modelType, modelID)
		if !found {
			return nil, fmt.Errorf("%s %s not found", modelType, modelID)
		}
		return model, nil
	}
}

func deref(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
