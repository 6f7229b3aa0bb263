package event

type EventKind int16

const (
	OnlineUsers        EventKind = iota + 1 // [PRESENCE]
	MessageReceived                         // [BUSINESS]
	MessageUndelivered                      // [SYSTEM]
)

// Wire names shared by every transport.
const (
	NameOnlineUsers        = "onlineUsers"
	NameGetMessage         = "getMessage"
	NameMessageUndelivered = "messageUndelivered"
	NameSendMessage        = "sendMessage"
	NameNewUser            = "newUser"
)

func (k EventKind) String() string {
	switch k {
	case OnlineUsers:
		return NameOnlineUsers
	case MessageReceived:
		return NameGetMessage
	case MessageUndelivered:
		return NameMessageUndelivered
	default:
		return "unknown"
	}
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all server -> client packets.
// Implementations are immutable once built; one instance may be handed to
// many connections, so the cache slot lets a transport encode it once.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetName() string
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}
