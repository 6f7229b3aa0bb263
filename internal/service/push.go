package service

import (
	"context"

	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/metrics"
)

// Pusher delivers messages that did not originate from a live connection,
// e.g. ones created through the REST API. There is no sender to echo to.
type Pusher interface {
	Push(ctx context.Context, env model.MessageEnvelope) bool
}

// Push hands env to the receiver's authoritative connection on this node.
// False means the receiver is not connected here or the event was shed.
func (s *RelayService) Push(ctx context.Context, env model.MessageEnvelope) bool {
	if env.ReceiverID == "" {
		metrics.MessagesPushed.WithLabelValues(metrics.OutcomeIgnored).Inc()
		return false
	}

	receiver, ok := s.registry.Resolve(env.ReceiverID)
	if !ok {
		metrics.MessagesPushed.WithLabelValues(metrics.OutcomeOffline).Inc()
		return false
	}

	now := s.now()
	if env.CreatedAt == "" {
		env.CreatedAt = model.FormatEnvelopeTime(now)
	}

	if !receiver.Send(event.NewMessageEvent(env, now)) {
		metrics.MessagesPushed.WithLabelValues(metrics.OutcomeShed).Inc()
		return false
	}
	metrics.MessagesPushed.WithLabelValues(metrics.OutcomeDelivered).Inc()
	return true
}
