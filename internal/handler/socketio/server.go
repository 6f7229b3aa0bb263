package socketio

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/estately/presence-relay/internal/domain/registry"
	"github.com/estately/presence-relay/internal/metrics"
	"github.com/estately/presence-relay/internal/service"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

const TransportName = "socketio"

// Server wraps the socket.io server that browser clients talk to.
type Server struct {
	server  *socket.Server
	handler http.Handler

	presence    service.Presencer
	relay       service.Relayer
	logger      *slog.Logger
	mailboxSize int
}

func NewServer(cfg *config.Config, logger *slog.Logger, presence service.Presencer, relay service.Relayer) *Server {
	opts := socket.DefaultServerOptions()
	opts.SetPath(cfg.SocketIO.Path)
	opts.SetPingInterval(cfg.Transport.PingInterval)
	opts.SetPingTimeout(cfg.Transport.PingTimeout)

	s := &Server{
		server:      socket.NewServer(nil, opts),
		presence:    presence,
		relay:       relay,
		logger:      logger,
		mailboxSize: cfg.Transport.MailboxSize,
	}
	s.handler = s.server.ServeHandler(nil)

	s.server.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.handleConnection(client)
	})

	return s
}

// Handler serves the engine.io transports (polling and websocket).
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Close() {
	s.server.Close(nil)
}

func (s *Server) handleConnection(client *socket.Socket) {
	socketID := string(client.Id())

	// 1. [HANDSHAKE] identity is required before any registry interaction.
	userID, err := UserIDFromAuth(client.Handshake().Auth)
	if err != nil {
		metrics.HandshakeRejected.WithLabelValues(TransportName).Inc()
		s.logger.Warn("SOCKETIO_HANDSHAKE_REJECTED", "err", err, "socket_id", socketID)
		client.Disconnect(true)
		return
	}

	sess := newSession(
		registry.NewConnector(context.Background(), userID, s.mailboxSize, registry.ConnectMetadata{
			Transport: TransportName,
		}),
		func(name string, payload any) { client.Emit(name, payload) },
		func() { client.Disconnect(true) },
	)
	log := s.logger.With("user_id", userID, "conn_id", sess.GetID(), "socket_id", socketID)

	// 2. [LIFECYCLE] handlers are bound before Connect so a disconnect racing
	// the registration still reaches the single teardown path.
	client.On("disconnect", func(data ...any) {
		reason, _ := firstArg(data)
		sess.markRemoteClosed()
		s.presence.Disconnect(context.Background(), sess)
		log.Debug("SOCKETIO_DISCONNECTED", "reason", reason)
	})

	client.On(event.NameSendMessage, func(data ...any) {
		s.onSendMessage(sess, data, log)
	})

	client.On(event.NameNewUser, func(data ...any) {
		// Older clients still announce themselves; identity came from the handshake.
		log.Debug("SOCKETIO_LEGACY_EVENT_IGNORED", "event", event.NameNewUser)
	})

	go sess.pump()

	// 3. REGISTER
	if err := s.presence.Connect(context.Background(), sess); err != nil {
		sess.Close()
		return
	}
	log.Debug("SOCKETIO_CONNECTED")
}

func (s *Server) onSendMessage(sess *session, data []any, log *slog.Logger) {
	// [PANIC_RECOVERY]
	defer recoverHandler(log, event.NameSendMessage)

	arg, ack := getFirstAnyWithAck(data)
	p, err := decodeSendMessage(arg)
	if err != nil {
		log.Warn("SOCKETIO_PAYLOAD_REJECTED", "err", err, "event", event.NameSendMessage)
		return
	}

	res := s.relay.Relay(context.Background(), sess, p)
	if ack != nil {
		ack(map[string]any{"ok": !res.Duplicate, "delivered": res.Delivered})
	}
}
