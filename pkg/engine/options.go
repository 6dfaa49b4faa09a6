package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/statorio/stator/pkg/bus"
	"github.com/statorio/stator/pkg/config"
	"github.com/statorio/stator/pkg/container"
	"github.com/statorio/stator/pkg/eventlog"
	"github.com/statorio/stator/pkg/fsm"
	"github.com/statorio/stator/pkg/fsmlog"
	"github.com/statorio/stator/pkg/logging"
	"github.com/statorio/stator/pkg/metrics"
	"github.com/statorio/stator/pkg/queue"
)

// ActorResolver extracts the acting subject from a request context.
// Used for subject attribution on transition events.
type ActorResolver func(ctx context.Context) (id, subjectType string, ok bool)

// TxRunner wraps a function in a storage transaction. When configured
// together with use_transactions, state writes and log writes commit
// or roll back together.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithDispatcher sets the event bus the engine publishes to.
func WithDispatcher(d bus.Dispatcher) Option {
	return func(e *Engine) {
		if d != nil {
			e.dispatcher = d
		}
	}
}

// WithTransitionLog sets the per-attempt transition logger.
func WithTransitionLog(l *fsmlog.Logger) Option {
	return func(e *Engine) { e.translog = l }
}

// WithEventLog sets the append-only success event store.
func WithEventLog(s eventlog.Store) Option {
	return func(e *Engine) { e.events = s }
}

// WithMetrics sets the transition metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithQueue sets the queue that carries queued callables.
func WithQueue(q queue.Queue) Option {
	return func(e *Engine) { e.queue = q }
}

// WithContainer sets the service container backing callable and
// parameter resolution.
func WithContainer(c *container.Container) Option {
	return func(e *Engine) { e.container = c }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the engine's own diagnostic logger.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithActorResolver sets the subject resolver used to attribute
// transition events when verbs.log_user_subject is enabled.
func WithActorResolver(r ActorResolver) Option {
	return func(e *Engine) { e.actor = r }
}

// WithTxRunner sets the transaction runner honored when
// use_transactions is enabled.
func WithTxRunner(r TxRunner) Option {
	return func(e *Engine) { e.txRunner = r }
}

// WithClock overrides the engine clock. Tests use this to pin
// durations and timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithTracer enables a span per transition attempt.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// PerformOption adjusts a single transition attempt.
type PerformOption func(*fsm.TransitionInput)

// WithEvent names the event triggering the transition.
func WithEvent(event string) PerformOption {
	return func(in *fsm.TransitionInput) { in.Event = event }
}

// WithContext attaches a context DTO to the attempt.
func WithContext(dto fsm.ContextDTO) PerformOption {
	return func(in *fsm.TransitionInput) { in.Context = dto }
}

// WithMode sets the attempt mode.
func WithMode(mode fsm.Mode) PerformOption {
	return func(in *fsm.TransitionInput) { in.Mode = mode }
}

// WithSource records what initiated the attempt.
func WithSource(source fsm.Source) PerformOption {
	return func(in *fsm.TransitionInput) { in.Source = source }
}

// WithMetadata attaches free-form metadata to the attempt.
func WithMetadata(md map[string]interface{}) PerformOption {
	return func(in *fsm.TransitionInput) { in.Metadata = md }
}

// WithParams supplies extra parameters merged into every callable
// invocation of the attempt.
func WithParams(params map[string]interface{}) PerformOption {
	return func(in *fsm.TransitionInput) { in.Params = params }
}
