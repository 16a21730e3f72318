// Package consumer drains event topics under a consumer group and guarantees
// each message is either fully processed and committed, left uncommitted for
// broker redelivery, or diverted to the dead-letter channel.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ecomstream/analytics/internal/metrics"
	"github.com/ecomstream/analytics/internal/model"
	"github.com/ecomstream/analytics/internal/processing"
)

type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// ErrAlreadyRegistered rejects a second processor for an event type that is
// already claimed: silent last-write-wins would hide misconfiguration.
var ErrAlreadyRegistered = errors.New("consumer: event type already registered")

// Source is the slice of the broker reader the consumer needs.
// *kafka.Reader satisfies it.
type Source interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Options struct {
	Source          Source
	DeadLetter      *DeadLetterRouter
	Metrics         *metrics.Registry
	ShutdownTimeout time.Duration

	// Ping is called during STARTING to fail fast when the broker is
	// unreachable. Optional.
	Ping func(ctx context.Context) error
}

type StreamConsumer struct {
	src             Source
	dlq             *DeadLetterRouter
	metrics         *metrics.Registry
	ping            func(ctx context.Context) error
	shutdownTimeout time.Duration

	processors map[model.EventType]processing.EventProcessor
	state      atomic.Int32
}

func New(o Options) *StreamConsumer {
	if o.Metrics == nil {
		o.Metrics = metrics.NewRegistry()
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	c := &StreamConsumer{
		src:             o.Source,
		dlq:             o.DeadLetter,
		metrics:         o.Metrics,
		ping:            o.Ping,
		shutdownTimeout: o.ShutdownTimeout,
		processors:      make(map[model.EventType]processing.EventProcessor),
	}
	c.state.Store(int32(StateCreated))
	return c
}

func (c *StreamConsumer) State() State { return State(c.state.Load()) }

func (c *StreamConsumer) setState(s State) { c.state.Store(int32(s)) }

// Register claims the processor's event types. Registration must happen
// before Run; a contested type is an error, not an overwrite.
func (c *StreamConsumer) Register(p processing.EventProcessor) error {
	for _, t := range p.EventTypes() {
		if _, taken := c.processors[t]; taken {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, t)
		}
	}
	for _, t := range p.EventTypes() {
		c.processors[t] = p
		log.Printf("[consumer] registered processor for %s", t)
	}
	return nil
}

// Run drives the full lifecycle. It returns when ctx is cancelled (graceful
// stop) or on an unrecoverable broker error; either way the consumer finishes
// its in-flight message, closes its connections and ends in StateStopped.
func (c *StreamConsumer) Run(ctx context.Context) error {
	c.setState(StateStarting)
	if c.ping != nil {
		if err := c.ping(ctx); err != nil {
			c.setState(StateStopped)
			return fmt.Errorf("consumer: start: %w", err)
		}
	}
	c.setState(StateRunning)
	log.Printf("[consumer] running")

	var runErr error
	for {
		// Stop signal is observed between messages, never mid-flight.
		if ctx.Err() != nil {
			break
		}
		msg, err := c.src.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			runErr = fmt.Errorf("consumer: fetch: %w", err)
			log.Printf("[error] kafka fetch: %v", err)
			break
		}
		c.handleMessage(ctx, msg)
	}

	c.setState(StateStopping)
	log.Printf("[shutdown] stopping consumer")
	if err := c.src.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("consumer: close: %w", err)
	}
	c.setState(StateStopped)
	log.Printf("[shutdown] consumer stopped")
	return runErr
}

// handleMessage runs the per-message protocol: parse → dispatch → commit.
// It is detached from the run context so a stop signal never aborts an
// in-flight upsert; the shutdown timeout bounds the drain instead.
func (c *StreamConsumer) handleMessage(ctx context.Context, msg kafka.Message) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.shutdownTimeout)
	defer cancel()

	evt, perr := model.ParseEvent(msg.Value)
	if perr != nil {
		// Poison message: dead-letter it and advance the offset so the
		// partition is never wedged on a payload that can never parse.
		c.metrics.IncConsumed(msg.Topic, metrics.StatusError)
		c.dlq.Route(pctx, msg.Topic, msg.Value, perr.Error())
		c.commit(pctx, msg)
		return
	}

	proc, ok := c.processors[evt.Type()]
	if !ok {
		// Absence of a handler is not a failure.
		log.Printf("[warn] no processor for event type %s", evt.Type())
		c.metrics.IncConsumed(msg.Topic, metrics.StatusSuccess)
		c.commit(pctx, msg)
		return
	}

	start := time.Now()
	err := safeProcess(pctx, proc, evt)
	c.metrics.ObserveProcessing(msg.Topic, string(evt.Type()), time.Since(start))

	if err != nil {
		// Offset stays put: the broker will redeliver. The DLQ copy is for
		// visibility only.
		c.metrics.IncConsumed(msg.Topic, metrics.StatusError)
		c.dlq.Route(pctx, msg.Topic, msg.Value, "processing failed: "+err.Error())
		return
	}

	c.metrics.IncConsumed(msg.Topic, metrics.StatusSuccess)
	c.commit(pctx, msg)
}

func (c *StreamConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.src.CommitMessages(ctx, msg); err != nil {
		log.Printf("[error] commit failed topic=%s partition=%d offset=%d: %v",
			msg.Topic, msg.Partition, msg.Offset, err)
	}
}

func safeProcess(ctx context.Context, p processing.EventProcessor, evt model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return p.Process(ctx, evt)
}
