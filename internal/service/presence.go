package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/estately/presence-relay/internal/adapter/pubsub"
	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/domain/registry"
	"github.com/estately/presence-relay/internal/metrics"
)

// [PRESENCE_SERVICE] CONNECTION LIFECYCLE FOR TRANSPORT HANDLERS
type Presencer interface {
	// Connect registers a handshaken connection. On error the transport must
	// close the connection without further registry calls.
	Connect(ctx context.Context, conn registry.Connector) error
	// Disconnect is the single teardown path. Only the first call for a
	// connection has an effect.
	Disconnect(ctx context.Context, conn registry.Connector) bool
	Snapshot() []string
	Stats() model.HubStats
}

// Counters are shared between the relay and the stats endpoint.
type Counters struct {
	Relayed   atomic.Uint64
	Delivered atomic.Uint64
}

func NewCounters() *Counters { return &Counters{} }

type PresenceService struct {
	registry   registry.Registrar
	dispatcher pubsub.EventDispatcher
	topics     pubsub.Topics
	counters   *Counters
	logger     *slog.Logger
}

func NewPresenceService(
	reg registry.Registrar,
	dispatcher pubsub.EventDispatcher,
	topics pubsub.Topics,
	counters *Counters,
	logger *slog.Logger,
) *PresenceService {
	return &PresenceService{
		registry:   reg,
		dispatcher: dispatcher,
		topics:     topics,
		counters:   counters,
		logger:     logger,
	}
}

func (s *PresenceService) Connect(ctx context.Context, conn registry.Connector) error {
	ch, err := s.registry.Register(conn)
	if err != nil {
		s.logger.Warn("PRESENCE_REGISTER_REJECTED",
			"err", err,
			"user_id", conn.GetUserID(),
			"conn_id", conn.GetID(),
		)
		return err
	}

	s.observe(ch)

	if !ch.Authoritative {
		// [KEEP_FIRST] the user is already online through another connection.
		s.logger.Info("PRESENCE_DUPLICATE_CONNECTION",
			"user_id", ch.UserID,
			"conn_id", ch.ConnID,
		)
		return nil
	}

	attrs := []any{"user_id", ch.UserID, "conn_id", ch.ConnID, "online", len(ch.Snapshot)}
	if ch.Displaced != nil {
		attrs = append(attrs, "displaced_conn_id", ch.Displaced.GetID())
	}
	s.logger.Info("PRESENCE_REGISTERED", attrs...)

	s.publish(ch.UserID, true, ch.Snapshot)
	return nil
}

func (s *PresenceService) Disconnect(ctx context.Context, conn registry.Connector) bool {
	if conn == nil {
		return false
	}
	defer conn.Close()

	ch, ok := s.registry.Unregister(conn)
	if !ok {
		return false
	}

	s.observe(ch)
	s.logger.Info("PRESENCE_UNREGISTERED",
		"user_id", ch.UserID,
		"conn_id", ch.ConnID,
		"authoritative", ch.Authoritative,
		"online", len(ch.Snapshot),
	)

	if ch.Authoritative {
		s.publish(ch.UserID, false, ch.Snapshot)
	}
	return true
}

func (s *PresenceService) Snapshot() []string {
	return s.registry.Snapshot()
}

func (s *PresenceService) Stats() model.HubStats {
	st := s.registry.Stats()
	st.Relayed = s.counters.Relayed.Load()
	st.Delivered = s.counters.Delivered.Load()
	return st
}

func (s *PresenceService) observe(ch registry.Change) {
	metrics.Broadcasts.Inc()
	metrics.OnlineUsers.Set(float64(len(ch.Snapshot)))
	metrics.Sessions.Set(float64(s.registry.Stats().Sessions))
	if ch.Shed > 0 {
		metrics.EventsDropped.WithLabelValues("presence").Add(float64(ch.Shed))
	}
}

func (s *PresenceService) publish(userID string, online bool, snapshot []string) {
	s.dispatcher.Dispatch(model.NewOutboundEvent(s.topics.PresenceChanged, model.PresenceChanged{
		UserID:      userID,
		Online:      online,
		OnlineUsers: snapshot,
	}))
}
