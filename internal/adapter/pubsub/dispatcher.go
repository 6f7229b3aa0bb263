package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/metrics"
	"github.com/sony/gobreaker"
)

// EventDispatcher publishes outbound events off the caller's goroutine.
// Dispatch never blocks: a full queue drops the event.
type EventDispatcher interface {
	Dispatch(ev *model.OutboundEvent) bool
	Publisher() message.Publisher
	Close(ctx context.Context) error
}

type eventDispatcher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *model.OutboundEvent
	done   chan struct{}
}

type dispatcherOptions struct {
	bufferSize int
	breaker    gobreaker.Settings
}

func defaultOptions() dispatcherOptions {
	return dispatcherOptions{
		bufferSize: 1024,
		breaker: gobreaker.Settings{
			Name:        "outbound-publisher",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		},
	}
}

// NewEventDispatcher starts the publishing worker. A nil publisher yields a
// dispatcher that accepts and discards everything.
func NewEventDispatcher(pub message.Publisher, bufferSize int, logger *slog.Logger) EventDispatcher {
	opts := defaultOptions()
	if bufferSize > 0 {
		opts.bufferSize = bufferSize
	}
	return newEventDispatcher(pub, opts, logger)
}

func newEventDispatcher(pub message.Publisher, opts dispatcherOptions, logger *slog.Logger) *eventDispatcher {
	d := &eventDispatcher{
		publisher: pub,
		logger:    logger,
		queue:     make(chan *model.OutboundEvent, opts.bufferSize),
		done:      make(chan struct{}),
	}

	opts.breaker.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("OUTBOUND_BREAKER_STATE", "breaker", name, "from", from.String(), "to", to.String())
	}
	d.breaker = gobreaker.NewCircuitBreaker(opts.breaker)

	go d.loop()
	return d
}

func (d *eventDispatcher) Dispatch(ev *model.OutboundEvent) bool {
	if ev == nil || d.publisher == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- ev:
		return true
	default:
		metrics.EventsDropped.WithLabelValues("outbound").Inc()
		return false
	}
}

func (d *eventDispatcher) loop() {
	defer close(d.done)
	for ev := range d.queue {
		d.publish(ev)
	}
}

func (d *eventDispatcher) publish(ev *model.OutboundEvent) {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("event dispatcher: marshal failure: %w", err)
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("event_id", ev.ID)
		msg.Metadata.Set("source", ev.Source)

		if err := d.publisher.Publish(ev.Topic, msg); err != nil {
			return nil, fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", ev.Topic, err)
		}
		return nil, nil
	})

	switch {
	case err == nil:
		metrics.OutboundPublished.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.OutboundPublished.WithLabelValues("open_circuit").Inc()
	default:
		metrics.OutboundPublished.WithLabelValues("error").Inc()
		d.logger.Error("OUTBOUND_PUBLISH_FAILED", "err", err, "topic", ev.Topic, "event_id", ev.ID)
	}
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}

// Close stops accepting events and waits for the queue to drain.
func (d *eventDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		return fmt.Errorf("event dispatcher: drain interrupted: %w", ctx.Err())
	}

	if d.publisher != nil {
		return d.publisher.Close()
	}
	return nil
}
