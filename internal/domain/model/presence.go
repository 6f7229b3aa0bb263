package model

// OnlineUsersPayload is the body of GET /v1/presence.
// Over the socket transports the `onlineUsers` event carries the bare list.
type OnlineUsersPayload struct {
	OnlineUsers []string `json:"onlineUsers"`
}

// UndeliveredPayload tells a sender that the receiver was offline at relay time.
// Only emitted when relay.notify_undelivered is enabled.
type UndeliveredPayload struct {
	ID         string `json:"id"`
	ReceiverID string `json:"receiverId"`
}
