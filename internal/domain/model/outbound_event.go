package model

import (
	"time"

	"github.com/google/uuid"
)

const Source = "presence-relay"

// OutboundEvent is published to the message bus for external observers
// (persistence, analytics). Publishing is fire-and-forget.
type OutboundEvent struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Topic     string `json:"-"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// PresenceChanged is published after every register/unregister.
type PresenceChanged struct {
	UserID      string   `json:"userId"`
	Online      bool     `json:"online"`
	OnlineUsers []string `json:"onlineUsers"`
}

// MessageRelayed is published after every relay. Text is deliberately omitted.
type MessageRelayed struct {
	ID         string `json:"id"`
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Delivered  bool   `json:"delivered"`
	CreatedAt  string `json:"createdAt"`
}

// NewOutboundEvent creates a fresh event ready for publishing.
func NewOutboundEvent(topic string, payload any) *OutboundEvent {
	return &OutboundEvent{
		ID:        uuid.NewString(),
		Source:    Source,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}
