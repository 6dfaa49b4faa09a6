package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/statorio/stator/pkg/logging"
)

// ErrBackpressure reports a full consumer buffer. Callers decide
// whether to retry, drop, or surface the condition.
var ErrBackpressure = errors.New("job buffer is full")

// Consumer executes queued jobs on a bounded worker pool. Jobs are
// submitted directly or delivered from a NATS subscription; execution
// errors are logged, never propagated to the producer.
type Consumer struct {
	runner Runner
	log    logging.Logger
	jobs   chan *Job
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	workers int
	buffer  int
	log     logging.Logger
}

// ConsumerWorkers sets the worker count.
func ConsumerWorkers(n int) ConsumerOption {
	return func(c *consumerConfig) { c.workers = n }
}

// ConsumerBuffer sets the pending-job buffer size.
func ConsumerBuffer(n int) ConsumerOption {
	return func(c *consumerConfig) { c.buffer = n }
}

// ConsumerLogger sets the logger.
func ConsumerLogger(log logging.Logger) ConsumerOption {
	return func(c *consumerConfig) { c.log = log }
}

// NewConsumer starts a consumer executing jobs through runner.
func NewConsumer(runner Runner, opts ...ConsumerOption) *Consumer {
	cfg := consumerConfig{workers: 4, buffer: 128, log: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers <= 0 {
		cfg.workers = 1
	}
	if cfg.buffer <= 0 {
		cfg.buffer = 128
	}

	c := &Consumer{
		runner: runner,
		log:    cfg.log,
		jobs:   make(chan *Job, cfg.buffer),
		stop:   make(chan struct{}),
	}
	for i := 0; i < cfg.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for {
		select {
		case job := <-c.jobs:
			if err := c.runner.Run(context.Background(), job); err != nil {
				c.log.Errorf("job %s (%s) failed: %v", job.ID, job.Callable, err)
			}
		case <-c.stop:
			return
		}
	}
}

// Submit hands a job to the pool. A full buffer returns
// ErrBackpressure immediately instead of blocking the producer.
func (c *Consumer) Submit(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.jobs <- job:
		return nil
	default:
		return ErrBackpressure
	}
}

// Stop shuts the workers down. In-flight jobs finish; buffered jobs
// are dropped.
func (c *Consumer) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// SubscribeNATS delivers every job published under the prefix's job
// subject space into this consumer. Undecodable or rejected messages
// are logged and dropped.
func (c *Consumer) SubscribeNATS(nc *nats.Conn, prefix string) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	subject := prefix + ".jobs.>"
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			c.log.Errorf("failed to decode job from %s: %v", msg.Subject, err)
			return
		}
		if err := c.Submit(context.Background(), &job); err != nil {
			c.log.Errorf("failed to accept job %s: %v", job.ID, err)
		}
	})
}
