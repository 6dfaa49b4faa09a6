package engine

import (
	"context"
	"fmt"

	"github.com/statorio/stator/pkg/entity"
	"github.com/statorio/stator/pkg/fsm"
	"github.com/statorio/stator/pkg/queue"
)

// EntityFetcher refetches the entity a queued job refers to. Jobs
// carry identity only; the consumer loads current data.
type EntityFetcher func(ctx context.Context, modelType, modelID string) (entity.Entity, error)

// JobRunner executes queued callables: it rebuilds the transition
// input around a refetched entity and invokes the callable through
// the engine's container.
type JobRunner struct {
	engine *Engine
	fetch  EntityFetcher
}

func NewJobRunner(e *Engine, fetch EntityFetcher) *JobRunner {
	return &JobRunner{engine: e, fetch: fetch}
}

func (r *JobRunner) Run(ctx context.Context, job *queue.Job) error {
	model, err := r.fetch(ctx, job.Input.ModelType, job.Input.ModelID)
	if err != nil {
		return fmt.Errorf("failed to fetch %s %s: %w", job.Input.ModelType, job.Input.ModelID, err)
	}

	input, err := job.Input.ToInput(model)
	if err != nil {
		return err
	}

	results, err := r.engine.invoke(ctx, fsm.CallableService(job.Callable), job.Params, input)
	if err == nil {
		err = lastError(results)
	}
	return err
}
