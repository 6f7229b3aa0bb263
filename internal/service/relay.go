package service

import (
	"context"
	"fmt"
	"time"

	"github.com/estately/presence-relay/internal/adapter/pubsub"
	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/domain/registry"
	"github.com/estately/presence-relay/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Relayer turns one sendMessage into at most one forward plus one echo.
type Relayer interface {
	Relay(ctx context.Context, sender registry.Connector, p model.SendMessagePayload) RelayResult
}

// RelayResult is informational. None of it is reported to the client as an
// error; an offline receiver looks exactly like a delivered message.
type RelayResult struct {
	Envelope  model.MessageEnvelope
	Resolved  bool // receiver had an authoritative connection
	Delivered bool // the forward was enqueued (or the receiver is the sender)
	Echoed    bool
	Duplicate bool // dropped by the messageId window
	Ignored   bool // payload had no receiver, only the echo went out
}

func (r RelayResult) Outcome() string {
	switch {
	case r.Ignored:
		return metrics.OutcomeIgnored
	case r.Duplicate:
		return metrics.OutcomeDuplicate
	case r.Delivered:
		return metrics.OutcomeDelivered
	case r.Resolved:
		return metrics.OutcomeShed
	default:
		return metrics.OutcomeOffline
	}
}

type RelayOptions struct {
	NotifyUndelivered bool
	DedupSize         int
	Now               func() time.Time
}

type RelayService struct {
	registry          registry.Registrar
	dispatcher        pubsub.EventDispatcher
	topics            pubsub.Topics
	counters          *Counters
	notifyUndelivered bool
	seen              *lru.Cache[string, struct{}]
	now               func() time.Time
}

func NewRelayService(
	reg registry.Registrar,
	dispatcher pubsub.EventDispatcher,
	topics pubsub.Topics,
	counters *Counters,
	opts RelayOptions,
) (*RelayService, error) {
	s := &RelayService{
		registry:          reg,
		dispatcher:        dispatcher,
		topics:            topics,
		counters:          counters,
		notifyUndelivered: opts.NotifyUndelivered,
		now:               opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	if opts.DedupSize > 0 {
		cache, err := lru.New[string, struct{}](opts.DedupSize)
		if err != nil {
			return nil, fmt.Errorf("relay dedup cache: %w", err)
		}
		s.seen = cache
	}
	return s, nil
}

// Relay never blocks on the receiver: delivery is a non-blocking enqueue and
// an unresolved receiver is dropped silently.
func (s *RelayService) Relay(ctx context.Context, sender registry.Connector, p model.SendMessagePayload) RelayResult {
	var res RelayResult
	defer func() {
		metrics.MessagesRelayed.WithLabelValues(res.Outcome()).Inc()
	}()

	senderID := sender.GetUserID()
	if s.seen != nil && p.MessageID != "" {
		if dup, _ := s.seen.ContainsOrAdd(senderID+"\x00"+p.MessageID, struct{}{}); dup {
			res.Duplicate = true
			return res
		}
	}

	now := s.now()
	res.Envelope = model.NewMessageEnvelope(senderID, p, now)
	ev := event.NewMessageEvent(res.Envelope, now)

	// 1. [FORWARD] exactly one attempt to the authoritative receiver connection.
	// A payload without a receiver skips straight to the echo.
	res.Ignored = p.ReceiverID == ""
	if receiver, ok := s.lookup(p.ReceiverID); ok {
		res.Resolved = true
		if receiver.GetID() == sender.GetID() {
			// Self-chat: the echo below is the delivery.
			res.Delivered = true
		} else {
			res.Delivered = receiver.Send(ev)
		}
	}

	// 2. [ECHO] always, to the invoking connection.
	res.Echoed = sender.Send(ev)

	if !res.Resolved && !res.Ignored && s.notifyUndelivered {
		sender.Send(event.NewUndeliveredEvent(p.MessageID, p.ReceiverID))
	}

	s.counters.Relayed.Add(1)
	if res.Delivered {
		s.counters.Delivered.Add(1)
	}

	s.dispatcher.Dispatch(model.NewOutboundEvent(s.topics.MessageRelayed, model.MessageRelayed{
		ID:         res.Envelope.ID,
		ChatID:     res.Envelope.ChatID,
		SenderID:   res.Envelope.SenderID,
		ReceiverID: res.Envelope.ReceiverID,
		Delivered:  res.Delivered,
		CreatedAt:  res.Envelope.CreatedAt,
	}))

	return res
}

func (s *RelayService) lookup(receiverID string) (registry.Connector, bool) {
	if receiverID == "" {
		return nil, false
	}
	return s.registry.Resolve(receiverID)
}
