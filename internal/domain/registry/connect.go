package registry

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/google/uuid"
)

// Interface guard
var _ Mailbox = (*connect)(nil)

// [CONNECTOR] THE CONTRACT BETWEEN THE REGISTRY AND A TRANSPORT
// One Connector is one ConnectionHandle: created after a successful handshake,
// invalidated forever by Close.
type Connector interface {
	GetID() string
	GetUserID() string
	// Send enqueues without blocking. False means the event was shed or the
	// connection is already closed.
	Send(ev event.Eventer) bool
	// Done is closed once Close has run.
	Done() <-chan struct{}
	Close()
}

// Mailbox is a Connector drained by a transport writer goroutine.
//
// The writer waits on Ready and then takes everything queued with Drain:
//
//	for {
//		select {
//		case <-mb.Ready():
//			for _, ev := range mb.Drain() { ... }
//		case <-mb.Done():
//			return
//		}
//	}
type Mailbox interface {
	Connector
	// Ready receives a signal after an event is queued. A signal may arrive
	// for events an earlier Drain already took.
	Ready() <-chan struct{}
	// Drain removes and returns every queued event, oldest first. It returns
	// nil once the connector is closed.
	Drain() []event.Eventer
	Dropped() uint64
}

// [METADATA] EXPORTED FOR TRANSPORT AND ANALYTICS LAYERS
type ConnectMetadata struct {
	Transport string
	RemoteIP  string
	UserAgent string
}

type connect struct {
	id        string
	userID    string
	metadata  ConnectMetadata
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	// mu guards the queue and orders Send against Drain and Close.
	mu          sync.Mutex
	closed      bool
	queue       []event.Eventer
	capacity    int  // limit for non-snapshot events
	hasSnapshot bool // at most one onlineUsers event is queued
	ready       chan struct{}

	closeOnce    sync.Once // [PROTECTION]
	droppedCount atomic.Uint64
}

// NewConnector builds a bounded connector. The context bounds its lifetime:
// cancelling it has the same effect as Close.
func NewConnector(ctx context.Context, userID string, bufferSize int, meta ConnectMetadata) Mailbox {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	childCtx, cancel := context.WithCancel(ctx)
	c := &connect{
		id:        uuid.NewString(),
		userID:    userID,
		metadata:  meta,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		capacity:  bufferSize,
		queue:     make([]event.Eventer, 0, bufferSize+1),
		ready:     make(chan struct{}, 1),
	}
	context.AfterFunc(childCtx, c.Close)
	return c
}

func (c *connect) GetID() string             { return c.id }
func (c *connect) GetUserID() string         { return c.userID }
func (c *connect) Metadata() ConnectMetadata { return c.metadata }
func (c *connect) Ready() <-chan struct{}    { return c.ready }
func (c *connect) Done() <-chan struct{}     { return c.ctx.Done() }
func (c *connect) Dropped() uint64           { return c.droppedCount.Load() }

// Send queues ev without blocking.
//
// An onlineUsers snapshot replaces any snapshot still queued, so the newest
// roster is always delivered. Other events keep their relative order; when the
// mailbox is full the oldest strictly lower priority event is evicted, and if
// there is none the incoming event is dropped.
func (c *connect) Send(ev event.Eventer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if ev.GetKind() == event.OnlineUsers {
		c.coalesceSnapshotLocked(ev)
		c.signal()
		return true
	}

	if !c.makeRoomLocked(ev) {
		c.droppedCount.Add(1)
		return false
	}
	c.queue = append(c.queue, ev)
	c.signal()
	return true
}

// [COALESCE] the superseded snapshot leaves the queue, the new one goes to
// the tail behind everything sent before it.
func (c *connect) coalesceSnapshotLocked(ev event.Eventer) {
	if c.hasSnapshot {
		c.queue = slices.DeleteFunc(c.queue, func(q event.Eventer) bool {
			return q.GetKind() == event.OnlineUsers
		})
	}
	c.queue = append(c.queue, ev)
	c.hasSnapshot = true
}

// makeRoomLocked reports whether ev fits, evicting one lower priority event
// if it has to.
func (c *connect) makeRoomLocked(ev event.Eventer) bool {
	pending := len(c.queue)
	if c.hasSnapshot {
		pending--
	}
	if pending < c.capacity {
		return true
	}

	// [BACKPRESSURE] never reorder: only an event that ranks strictly lower
	// than the incoming one may leave the queue.
	for i, q := range c.queue {
		if q.GetKind() == event.OnlineUsers {
			continue
		}
		if q.GetPriority() < ev.GetPriority() {
			c.queue = slices.Delete(c.queue, i, i+1)
			c.droppedCount.Add(1)
			return true
		}
	}
	return false
}

func (c *connect) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

func (c *connect) Drain() []event.Eventer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = make([]event.Eventer, 0, c.capacity+1)
	c.hasSnapshot = false
	return out
}

// Close terminates the connector and discards anything still queued. Safe to
// call from the registry (shutdown), the transport (teardown) and the context
// watcher concurrently.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		// 1. [SIGNAL_ABORT] Unblock anyone selecting on Done.
		c.cancelFn()

		// 2. [RELEASE] Later Sends fail and Drain returns nothing.
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.hasSnapshot = false
		c.mu.Unlock()
	})
}
