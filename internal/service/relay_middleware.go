package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/domain/registry"
)

// RelayMiddleware implements [DECORATOR_PATTERN] to add observability
// to the relay without touching its logic.
type RelayMiddleware struct {
	Next   Relayer
	Logger *slog.Logger
}

// NewRelayMiddleware creates a new logging decorator for the Relayer.
func NewRelayMiddleware(next Relayer, logger *slog.Logger) Relayer {
	return &RelayMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *RelayMiddleware) Relay(ctx context.Context, sender registry.Connector, p model.SendMessagePayload) RelayResult {
	start := time.Now()

	res := m.Next.Relay(ctx, sender, p)

	switch {
	case res.Ignored:
		m.Logger.Warn("RELAY_NO_RECEIVER_ECHO_ONLY",
			"sender_id", sender.GetUserID(),
			"conn_id", sender.GetID(),
			"message_id", res.Envelope.ID,
			"echoed", res.Echoed,
		)
	case res.Duplicate:
		m.Logger.Info("RELAY_DUPLICATE_DROPPED",
			"sender_id", sender.GetUserID(),
			"message_id", p.MessageID,
		)
	default:
		m.Logger.Debug("RELAY_COMPLETED",
			"message_id", res.Envelope.ID,
			"chat_id", res.Envelope.ChatID,
			"sender_id", res.Envelope.SenderID,
			"receiver_id", res.Envelope.ReceiverID,
			"outcome", res.Outcome(),
			"echoed", res.Echoed,
			"duration_us", time.Since(start).Microseconds(),
		)
	}

	return res
}
