package wsmarshaller

import (
	"encoding/json"
	"fmt"

	"github.com/estately/presence-relay/internal/domain/event"
)

// WSEvent is the wrapper for every server -> client frame. Event names and
// payload shapes are the same as on the socket.io transport.
type WSEvent struct {
	Event   string `json:"event"` // e.g., "onlineUsers", "getMessage"
	Payload any    `json:"payload"`
}

// MarshallDeliveryEvent prepares data for WebSocket transmission.
// Events are shared between connections, so the encoded frame is cached on the
// event and reused by every writer after the first.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	if cached, ok := ev.GetCached().([]byte); ok {
		return cached, nil
	}

	data, err := json.Marshal(&WSEvent{
		Event:   ev.GetName(),
		Payload: ev.GetPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", ev.GetName(), err)
	}

	ev.SetCached(data)
	return data, nil
}
