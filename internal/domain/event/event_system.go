package event

import (
	"time"

	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/google/uuid"
)

// [GUARD] Ensure compliance with the Eventer interface.
var _ Eventer = (*SystemEvent)(nil)

// SystemEvent is a generic envelope for service-generated signals.
type SystemEvent struct {
	id         string
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any
	cache      cacheSlot
}

func (e *SystemEvent) GetID() string              { return e.id }
func (e *SystemEvent) GetKind() EventKind         { return e.kind }
func (e *SystemEvent) GetName() string            { return e.kind.String() }
func (e *SystemEvent) GetPriority() EventPriority { return e.priority }
func (e *SystemEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *SystemEvent) GetPayload() any            { return e.payload }
func (e *SystemEvent) GetCached() any             { return e.cache.get() }
func (e *SystemEvent) SetCached(v any)            { e.cache.set(v) }

// NewSystemEvent is a universal factory for creating any signal.
func NewSystemEvent(kind EventKind, priority EventPriority, payload any) *SystemEvent {
	return &SystemEvent{
		id:         uuid.NewString(),
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}

// NewUndeliveredEvent reports an offline receiver back to the sender.
func NewUndeliveredEvent(messageID, receiverID string) *SystemEvent {
	return NewSystemEvent(MessageUndelivered, PriorityNormal, &model.UndeliveredPayload{
		ID:         messageID,
		ReceiverID: receiverID,
	})
}
