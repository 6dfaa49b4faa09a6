// Package metrics counts transition outcomes. Recording never fails
// the transition it measures: errors are logged and dropped.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/statorio/stator/pkg/bus"
	"github.com/statorio/stator/pkg/logging"
)

var (
	// DefaultRegistry is the default Prometheus registry.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer labels everything registered through it with
	// the service name.
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "stator"}, DefaultRegistry)
)

// AddressTransitionMetric is the observability event published after
// every recorded sample.
const AddressTransitionMetric = "fsm.metrics.transition"

// TransitionMetric is the per-sample observability event.
type TransitionMetric struct {
	ModelClass string                 `json:"modelClass"`
	ModelKey   string                 `json:"modelKey"`
	Column     string                 `json:"columnName"`
	FromState  *string                `json:"fromState"`
	ToState    string                 `json:"toState"`
	Successful bool                   `json:"successful"`
	DurationMs uint64                 `json:"durationMs"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

func (TransitionMetric) Address() string { return AddressTransitionMetric }

// Sample is one measured transition attempt.
type Sample struct {
	ModelClass string
	ModelKey   string
	Column     string
	FromState  *string
	ToState    string
	Successful bool
	Duration   time.Duration
	Context    map[string]interface{}
}

// Recorder feeds transition outcomes into Prometheus and republishes
// them as observability events.
type Recorder struct {
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	duration *prometheus.HistogramVec

	dispatcher bus.Dispatcher
	log        logging.Logger
}

// NewRecorder registers the transition metrics on the given
// registerer. A nil registerer uses the package default; a nil
// dispatcher disables the observability event.
func NewRecorder(registerer prometheus.Registerer, dispatcher bus.Dispatcher, log logging.Logger) *Recorder {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	if dispatcher == nil {
		dispatcher = bus.NopDispatcher{}
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	labels := []string{"model", "column"}
	return &Recorder{
		success: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "stator_fsm_transitions_success_total",
				Help: "Total number of successful state transitions",
			},
			labels,
		),
		failure: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "stator_fsm_transitions_failure_total",
				Help: "Total number of failed state transitions",
			},
			labels,
		),
		duration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stator_fsm_transition_duration_seconds",
				Help:    "State transition duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			labels,
		),
		dispatcher: dispatcher,
		log:        log,
	}
}

// Record counts the sample and publishes the observability event. It
// never returns an error: a metric must not change the outcome it
// measures.
func (r *Recorder) Record(ctx context.Context, sample Sample) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("metrics recorder panicked: %v", rec)
		}
	}()

	labels := prometheus.Labels{"model": sample.ModelClass, "column": sample.Column}
	if sample.Successful {
		r.success.With(labels).Inc()
	} else {
		r.failure.With(labels).Inc()
	}
	r.duration.With(labels).Observe(sample.Duration.Seconds())

	event := TransitionMetric{
		ModelClass: sample.ModelClass,
		ModelKey:   sample.ModelKey,
		Column:     sample.Column,
		FromState:  sample.FromState,
		ToState:    sample.ToState,
		Successful: sample.Successful,
		DurationMs: uint64(sample.Duration.Milliseconds()),
		Context:    sample.Context,
	}
	if err := r.dispatcher.Dispatch(ctx, event); err != nil {
		r.log.Errorf("failed to publish transition metric: %v", err)
	}
}
