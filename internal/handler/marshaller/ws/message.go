package wsmarshaller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/estately/presence-relay/internal/domain/model"
)

var ErrMalformedFrame = errors.New("ws: malformed frame")

// InboundFrame is a client -> server frame. Payload is decoded lazily once the
// event name is known.
type InboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func UnmarshallFrame(data []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Event == "" {
		return InboundFrame{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return f, nil
}

// DecodeSendMessage reads a sendMessage payload. Unknown fields are ignored and
// missing ones stay empty, like the socket.io transport.
func DecodeSendMessage(raw json.RawMessage) (model.SendMessagePayload, error) {
	var p model.SendMessagePayload
	if len(raw) == 0 || string(raw) == "null" {
		return p, fmt.Errorf("%w: empty sendMessage payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return p, nil
}
