// Package queue carries queued guards, actions, and callbacks across
// the process boundary. A Job is the serializable unit: a callable
// reference plus a snapshot of the transition input it should run
// against. Delivery guarantees are the backing queue's concern.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/statorio/stator/pkg/entity"
	"github.com/statorio/stator/pkg/fsm"
)

// ContextSerializationFailedKey is set in Job.Params when the
// transition context could not be encoded. The job is still enqueued;
// the consumer decides whether it can run without context.
const ContextSerializationFailedKey = "_context_serialization_failed"

// ContextEnvelope is the wire form of a context DTO.
type ContextEnvelope struct {
	Class   string                 `json:"class"`
	Payload map[string]interface{} `json:"payload"`
}

// InputSnapshot is the queue-safe projection of a transition input.
// The model travels as identity only; consumers refetch it before
// rebuilding the input.
type InputSnapshot struct {
	ModelID   string                 `json:"model_id"`
	ModelType string                 `json:"model_type"`
	Column    string                 `json:"column"`
	FromState *string                `json:"from_state"`
	ToState   string                 `json:"to_state"`
	Event     string                 `json:"event,omitempty"`
	Mode      string                 `json:"mode"`
	Source    string                 `json:"source"`
	Context   *ContextEnvelope       `json:"context"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToInput rebuilds a transition input around a refetched model,
// rehydrating the context DTO from its envelope.
func (s *InputSnapshot) ToInput(model entity.Entity) (*fsm.TransitionInput, error) {
	in := &fsm.TransitionInput{
		Model:     model,
		To:        fsm.State(s.ToState),
		Event:     s.Event,
		Mode:      fsm.Mode(s.Mode),
		Source:    fsm.Source(s.Source),
		Metadata:  s.Metadata,
		Timestamp: s.Timestamp,
	}
	if s.FromState != nil {
		from := fsm.State(*s.FromState)
		in.From = &from
	}
	if s.Context != nil {
		dto, err := fsm.HydrateContext(s.Context.Class, s.Context.Payload)
		if err != nil {
			return nil, err
		}
		in.Context = dto
	}
	return in, in.Normalize()
}

// Job is one queued callable invocation.
type Job struct {
	ID         string                 `json:"id"`
	Callable   string                 `json:"callable"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Input      InputSnapshot          `json:"input"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

// NewJob snapshots the input for the named callable. A context that
// fails to encode is dropped and flagged in Params rather than
// blocking the enqueue.
func NewJob(callable string, params map[string]interface{}, input *fsm.TransitionInput, column string) *Job {
	snap := InputSnapshot{
		ModelID:   input.Model.Key(),
		ModelType: input.Model.MorphClass(),
		Column:    column,
		ToState:   string(input.To),
		Event:     input.Event,
		Mode:      string(input.Mode),
		Source:    string(input.Source),
		Metadata:  input.Metadata,
		Timestamp: input.Timestamp,
	}
	if input.From != nil {
		from := string(*input.From)
		snap.FromState = &from
	}

	job := &Job{
		ID:         uuid.NewString(),
		Callable:   callable,
		Params:     params,
		Input:      snap,
		EnqueuedAt: time.Now().UTC(),
	}

	if input.Context != nil {
		class, payload, err := fsm.EncodeContext(input.Context)
		if err != nil {
			if job.Params == nil {
				job.Params = map[string]interface{}{}
			}
			job.Params[ContextSerializationFailedKey] = true
		} else {
			job.Input.Context = &ContextEnvelope{Class: class, Payload: payload}
		}
	}
	return job
}

// Queue accepts jobs for asynchronous execution.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
}

// Runner executes a dequeued job: resolve the callable, rebuild the
// input, invoke. The engine provides the canonical implementation.
type Runner interface {
	Run(ctx context.Context, job *Job) error
}
