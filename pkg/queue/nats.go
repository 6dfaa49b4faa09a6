package queue

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to job subjects when no prefix is
// configured.
const DefaultSubjectPrefix = "stator"

// NATSQueue publishes jobs as JSON to <prefix>.jobs.<callable>
// subjects. Consumers subscribe per callable or on the jobs wildcard;
// redelivery and acknowledgement are theirs to configure.
type NATSQueue struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// NewNATSQueue wraps an existing connection. The caller keeps
// ownership of the connection.
func NewNATSQueue(nc *nats.Conn, prefix string) *NATSQueue {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSQueue{nc: nc, prefix: prefix}
}

// ConnectNATSQueue dials the server and returns a queue that owns the
// connection; Close drains it.
func ConnectNATSQueue(url, prefix string, opts ...nats.Option) (*NATSQueue, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	q := NewNATSQueue(nc, prefix)
	q.owned = true
	return q, nil
}

// Subject returns the NATS subject for a callable reference. Callable
// names become a single token: characters NATS reserves are folded to
// underscores.
func (q *NATSQueue) Subject(callable string) string {
	return q.prefix + ".jobs." + subjectToken(callable)
}

func (q *NATSQueue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.nc.Publish(q.Subject(job.Callable), data)
}

// Close drains the connection when the queue owns it.
func (q *NATSQueue) Close() error {
	if !q.owned {
		return nil
	}
	return q.nc.Drain()
}

func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		}
		return r
	}, s)
}
