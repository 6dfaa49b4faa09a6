package bus

import "context"

// Dispatcher publishes machine events.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// Handler consumes events delivered by a LocalDispatcher.
type Handler func(ctx context.Context, event Event)

// MultiDispatcher fans one event out to several dispatchers. Every
// dispatcher sees the event; the first error is reported after all
// deliveries.
type MultiDispatcher []Dispatcher

func (m MultiDispatcher) Dispatch(ctx context.Context, event Event) error {
	var first error
	for _, d := range m {
		if err := d.Dispatch(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NopDispatcher discards every event.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, Event) error { return nil }
