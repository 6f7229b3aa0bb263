package inbound

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
)

// MetadataReceiverID lets producers route a push without the consumer
// decoding the payload first.
const MetadataReceiverID = "receiver_id"

type traceIDKey struct{}

// TraceIDFromContext returns the trace id set by TraceIDMiddleware.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// [TRACE_ID_MIDDLEWARE]
// A push keeps the trace id of the REST request that produced it. Producers
// that only set watermill's correlation id get that one instead.
func TraceIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		traceID := msg.Metadata.Get("trace_id")
		if traceID == "" {
			traceID = middleware.MessageCorrelationID(msg)
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}
		msg.Metadata.Set("trace_id", traceID)
		msg.SetContext(context.WithValue(msg.Context(), traceIDKey{}, traceID))

		return h(msg)
	}
}

// [LOGGING_MIDDLEWARE]
// One line per push attempt, tagged with the receiver it was routed to.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			attrs := []any{
				"msg_id", msg.UUID,
				"trace_id", msg.Metadata.Get("trace_id"),
				"receiver_id", receiverOf(msg),
				"topic", message.SubscribeTopicFromCtx(msg.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("PUSH_ATTEMPT_FAILED", append(attrs, "err", err)...)
				return msgs, err
			}
			logger.Debug("PUSH_HANDLED", attrs...)
			return msgs, nil
		}
	}
}

// receiverOf reads the routing key from metadata, falling back to the
// envelope's receiverId.
func receiverOf(msg *message.Message) string {
	if id := msg.Metadata.Get(MetadataReceiverID); id != "" {
		return id
	}
	var peek struct {
		ReceiverID string `json:"receiverId"`
	}
	_ = json.Unmarshal(msg.Payload, &peek)
	return peek.ReceiverID
}

// [RETRY_MIDDLEWARE]
// A push is only worth retrying while the receiver may still be connected, so
// the whole retry window is capped well below a typical reconnect.
func NewRetryMiddleware(logger *slog.Logger) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: time.Second * 2,
		MaxInterval:     time.Second * 15,
		Multiplier:      2.0,
		MaxElapsedTime:  time.Second * 30,
		OnRetryHook: func(retryNum int, delay time.Duration) {
			logger.Info("PUSH_RETRY_SCHEDULED", "attempt", retryNum, "delay_ms", delay.Milliseconds())
		},
	}
}
