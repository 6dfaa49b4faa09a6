package bus

import (
	"context"
	"sync"

	"github.com/statorio/stator/pkg/logging"
)

// SubscribeAll as a subscription address receives every event.
const SubscribeAll = "*"

// LocalDispatcher delivers events synchronously to in-process
// subscribers. Delivery order follows subscription order; a
// subscriber panic is recovered and logged so the remaining
// subscribers and the publishing transition are unaffected.
type LocalDispatcher struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	nextID int
	log    logging.Logger
}

type subscription struct {
	id int
	fn Handler
}

// NewLocalDispatcher creates an empty dispatcher.
func NewLocalDispatcher(log logging.Logger) *LocalDispatcher {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &LocalDispatcher{
		subs: make(map[string][]*subscription),
		log:  log,
	}
}

// Subscribe registers a handler for one address, or for every event
// via SubscribeAll. The returned function removes the subscription.
func (d *LocalDispatcher) Subscribe(address string, fn Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	sub := &subscription{id: d.nextID, fn: fn}
	d.subs[address] = append(d.subs[address], sub)

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		list := d.subs[address]
		for i, s := range list {
			if s.id == sub.id {
				d.subs[address] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers the event to address subscribers, then wildcard
// subscribers, on the calling goroutine.
func (d *LocalDispatcher) Dispatch(ctx context.Context, event Event) error {
	d.mu.RLock()
	targets := make([]*subscription, 0, len(d.subs[event.Address()])+len(d.subs[SubscribeAll]))
	targets = append(targets, d.subs[event.Address()]...)
	targets = append(targets, d.subs[SubscribeAll]...)
	d.mu.RUnlock()

	for _, sub := range targets {
		d.deliver(ctx, sub.fn, event)
	}
	return nil
}

func (d *LocalDispatcher) deliver(ctx context.Context, fn Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("event subscriber panicked on %s: %v", event.Address(), r)
		}
	}()
	fn(ctx, event)
}
