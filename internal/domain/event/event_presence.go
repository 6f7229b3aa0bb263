package event

import (
	"time"

	"github.com/google/uuid"
)

var _ Eventer = (*PresenceEvent)(nil)

// PresenceEvent is a full snapshot of online users, never a delta.
// Low priority: under backpressure a queued snapshot may be shed because
// the next one supersedes it.
type PresenceEvent struct {
	id         string
	users      []string
	occurredAt int64
	cache      cacheSlot
}

// NewPresenceEvent takes ownership of users; callers pass a fresh snapshot.
func NewPresenceEvent(users []string) *PresenceEvent {
	if users == nil {
		users = []string{}
	}
	return &PresenceEvent{
		id:         uuid.NewString(),
		users:      users,
		occurredAt: time.Now().UnixMilli(),
	}
}

func (e *PresenceEvent) GetID() string              { return e.id }
func (e *PresenceEvent) GetKind() EventKind         { return OnlineUsers }
func (e *PresenceEvent) GetName() string            { return NameOnlineUsers }
func (e *PresenceEvent) GetPriority() EventPriority { return PriorityLow }
func (e *PresenceEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *PresenceEvent) GetCached() any             { return e.cache.get() }
func (e *PresenceEvent) SetCached(v any)            { e.cache.set(v) }

func (e *PresenceEvent) GetPayload() any {
	out := make([]string, len(e.users))
	copy(out, e.users)
	return out
}

func (e *PresenceEvent) Users() []string { return e.GetPayload().([]string) }
