package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/estately/presence-relay/internal/domain/model"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

var (
	ErrMissingUserID  = errors.New("socketio: handshake auth has no userId")
	ErrInvalidPayload = errors.New("socketio: invalid payload")
)

// UserIDFromAuth reads handshake.auth.userId. Only a non-empty string counts.
func UserIDFromAuth(auth map[string]any) (string, error) {
	raw, ok := auth["userId"]
	if !ok {
		return "", ErrMissingUserID
	}
	id, ok := raw.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", ErrMissingUserID
	}
	return strings.TrimSpace(id), nil
}

func decodeSendMessage(arg any) (model.SendMessagePayload, error) {
	var p model.SendMessagePayload
	if arg == nil {
		return p, fmt.Errorf("%w: empty sendMessage", ErrInvalidPayload)
	}
	if err := decodeAny(arg, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

func decodeAny(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func firstArg(data []any) (any, bool) {
	if len(data) == 0 {
		return nil, false
	}
	return data[0], true
}

// getFirstAnyWithAck splits an event's arguments into its payload and the
// optional acknowledgement callback a client may pass last.
func getFirstAnyWithAck(data []any) (any, func(...any)) {
	var ack func(...any)
	if len(data) == 0 {
		return nil, nil
	}
	if cb, ok := data[len(data)-1].(func(...any)); ok {
		ack = cb
		data = data[:len(data)-1]
	} else if cb, ok := data[len(data)-1].(socket.Ack); ok {
		ack = func(args ...any) {
			cb(args, nil)
		}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil, ack
	}
	return data[0], ack
}

func recoverHandler(log *slog.Logger, name string) {
	if r := recover(); r != nil {
		log.Error("PANIC_RECOVERED", "err", r, "event", name, "stack", string(debug.Stack()))
	}
}
