package bus

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to event addresses when no prefix
// is configured.
const DefaultSubjectPrefix = "stator"

// NATSDispatcher publishes events as JSON to <prefix>.<address>
// subjects.
type NATSDispatcher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// NewNATSDispatcher wraps an existing connection. The caller keeps
// ownership of the connection.
func NewNATSDispatcher(nc *nats.Conn, prefix string) *NATSDispatcher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSDispatcher{nc: nc, prefix: prefix}
}

// ConnectNATS dials the server and returns a dispatcher that owns the
// connection; Close drains it.
func ConnectNATS(url, prefix string, opts ...nats.Option) (*NATSDispatcher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	d := NewNATSDispatcher(nc, prefix)
	d.owned = true
	return d, nil
}

// Subject returns the NATS subject for an event address.
func (d *NATSDispatcher) Subject(address string) string {
	return d.prefix + "." + address
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return d.nc.Publish(d.Subject(event.Address()), data)
}

// Close drains the connection when the dispatcher owns it.
func (d *NATSDispatcher) Close() error {
	if !d.owned {
		return nil
	}
	if err := d.nc.Drain(); err != nil {
		return err
	}
	return nil
}
