package event

import (
	"sync"
	"time"

	"github.com/estately/presence-relay/internal/domain/model"
)

var _ Eventer = (*MessageEvent)(nil)

// MessageEvent carries one relayed envelope. The same instance is delivered
// to the receiver and echoed to the sender.
type MessageEvent struct {
	envelope   model.MessageEnvelope
	occurredAt int64
	cache      cacheSlot
}

func NewMessageEvent(env model.MessageEnvelope, now time.Time) *MessageEvent {
	return &MessageEvent{envelope: env, occurredAt: now.UnixMilli()}
}

func (e *MessageEvent) GetID() string              { return e.envelope.ID }
func (e *MessageEvent) GetKind() EventKind         { return MessageReceived }
func (e *MessageEvent) GetName() string            { return NameGetMessage }
func (e *MessageEvent) GetPriority() EventPriority { return PriorityHigh }
func (e *MessageEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *MessageEvent) GetCached() any             { return e.cache.get() }
func (e *MessageEvent) SetCached(v any)            { e.cache.set(v) }

// GetPayload returns a copy so receivers cannot mutate the shared envelope.
func (e *MessageEvent) GetPayload() any { return e.envelope }

func (e *MessageEvent) Envelope() model.MessageEnvelope { return e.envelope }

// cacheSlot guards the encoded form; writer goroutines of different
// connections may race to fill it.
type cacheSlot struct {
	mu sync.RWMutex
	v  any
}

func (c *cacheSlot) get() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

func (c *cacheSlot) set(v any) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}
