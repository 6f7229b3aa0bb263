package inbound

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/estately/presence-relay/internal/adapter/pubsub"
	"github.com/estately/presence-relay/internal/service"
)

const HandlerMessagePush = "ON_MESSAGE_PUSH"

type MessageHandler struct {
	logger *slog.Logger
	pusher service.Pusher
	topics pubsub.Topics
}

func NewMessageHandler(logger *slog.Logger, pusher service.Pusher, topics pubsub.Topics) *MessageHandler {
	return &MessageHandler{logger: logger, pusher: pusher, topics: topics}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, bus pubsub.Bus) error {
	poison, err := middleware.PoisonQueue(bus.Publisher, h.topics.MessagePushPoison)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{HandlerMessagePush, h.topics.MessagePush, Bind(h, h.OnMessagePush)},
	}

	for _, c := range configs {
		router.AddConsumerHandler(c.name, c.topic, bus.Subscriber, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware(h.logger).Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("INBOUND_PIPELINE_READY", "topic", h.topics.MessagePush)
	return nil
}
