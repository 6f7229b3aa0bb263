package model

import "time"

// EnvelopeTimeLayout matches the ISO-8601 form produced by JavaScript's
// Date.prototype.toISOString, which existing clients parse.
const EnvelopeTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// [ENVELOPE] IN-FLIGHT REPRESENTATION OF A CHAT MESSAGE
// It is never persisted here and never mutated after construction.
type MessageEnvelope struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	CreatedAt  string `json:"createdAt"`
}

// NewMessageEnvelope stamps the envelope with the relay time.
// senderID must come from the authenticated connection, never from the payload.
func NewMessageEnvelope(senderID string, p SendMessagePayload, now time.Time) MessageEnvelope {
	return MessageEnvelope{
		ID:         p.MessageID,
		Text:       p.Text,
		ChatID:     p.ChatID,
		SenderID:   senderID,
		ReceiverID: p.ReceiverID,
		CreatedAt:  FormatEnvelopeTime(now),
	}
}

// FormatEnvelopeTime renders t in UTC with millisecond precision.
func FormatEnvelopeTime(t time.Time) string {
	return t.UTC().Format(EnvelopeTimeLayout)
}

// SendMessagePayload is the client -> server `sendMessage` body.
type SendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	ChatID     string `json:"chatId"`
	MessageID  string `json:"messageId"`
}
