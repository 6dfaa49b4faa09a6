// Package bus delivers machine lifecycle events to observers. The
// engine publishes through a Dispatcher; implementations fan out
// in-process, over NATS, or to websocket clients. Observer failures
// never propagate back into the transition.
package bus

import "time"

// Addresses of the four machine lifecycle events.
const (
	AddressTransitionAttempted = "fsm.transition.attempted"
	AddressTransitionSucceeded = "fsm.transition.succeeded"
	AddressTransitionFailed    = "fsm.transition.failed"
	AddressStateTransitioned   = "fsm.state.transitioned"
)

// Event is a payload with a stable dotted address.
type Event interface {
	Address() string
}

// TransitionAttempted is published before guards run, for every
// attempt including dry runs.
type TransitionAttempted struct {
	ModelClass string                 `json:"modelClass"`
	ModelKey   string                 `json:"modelKey"`
	Column     string                 `json:"columnName"`
	FromState  *string                `json:"fromState"`
	ToState    string                 `json:"toState"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

func (TransitionAttempted) Address() string { return AddressTransitionAttempted }

// TransitionSucceeded is published after the new state is persisted
// and post-transition hooks ran.
type TransitionSucceeded struct {
	ModelClass string  `json:"modelClass"`
	ModelKey   string  `json:"modelKey"`
	Column     string  `json:"columnName"`
	FromState  *string `json:"fromState"`
	ToState    string  `json:"toState"`
}

func (TransitionSucceeded) Address() string { return AddressTransitionSucceeded }

// TransitionFailed is published when any phase fails after the
// attempt was announced.
type TransitionFailed struct {
	ModelClass string                 `json:"modelClass"`
	ModelKey   string                 `json:"modelKey"`
	Column     string                 `json:"columnName"`
	FromState  *string                `json:"fromState"`
	ToState    string                 `json:"toState"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Exception  string                 `json:"exception"`
}

func (TransitionFailed) Address() string { return AddressTransitionFailed }

// StateTransitioned is the domain-facing notification carrying the
// transition identity and metadata. Emission is gated by the
// dispatch_transitioned_verb configuration key.
type StateTransitioned struct {
	ModelClass     string                 `json:"modelClass"`
	ModelKey       string                 `json:"modelKey"`
	Column         string                 `json:"columnName"`
	FromState      *string                `json:"fromState"`
	ToState        string                 `json:"toState"`
	TransitionName string                 `json:"transitionName"`
	Timestamp      time.Time              `json:"timestamp"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

func (StateTransitioned) Address() string { return AddressStateTransitioned }
