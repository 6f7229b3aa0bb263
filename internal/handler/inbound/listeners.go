package inbound

import (
	"context"

	"github.com/estately/presence-relay/internal/domain/model"
)

// [ON_MESSAGE_PUSH]
// Every node receives every push; only the node holding the receiver's
// authoritative connection delivers it. The rest ACK and move on.
func (h *MessageHandler) OnMessagePush(ctx context.Context, env *model.MessageEnvelope) error {
	if env.ReceiverID == "" {
		h.logger.Warn("ROUTING_FAILED: recipient_missing", "message_id", env.ID)
		return nil // ACK: Invalid routing is a terminal state.
	}

	// [LOCALITY_FILTER]
	if !h.pusher.Push(ctx, *env) {
		h.logger.Debug("PUSH_NOT_LOCAL", "message_id", env.ID, "receiver_id", env.ReceiverID)
		return nil
	}

	h.logger.Debug("PUSH_DELIVERED", "message_id", env.ID, "receiver_id", env.ReceiverID)
	return nil
}
