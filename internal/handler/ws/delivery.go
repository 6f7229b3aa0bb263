package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/estately/presence-relay/internal/domain/registry"
	wsmarshaller "github.com/estately/presence-relay/internal/handler/marshaller/ws"
	"github.com/estately/presence-relay/internal/metrics"
	"github.com/estately/presence-relay/internal/service"
	"github.com/gorilla/websocket"
)

const (
	TransportName = "ws"

	HeaderUserID = "X-User-Id"
	QueryUserID  = "userId"

	writeWait    = 10 * time.Second
	maxFrameSize = 64 << 10
)

var ErrMissingIdentity = errors.New("ws: missing userId")

type WSHandler struct {
	logger   *slog.Logger
	presence service.Presencer
	relay    service.Relayer
	upgrader websocket.Upgrader

	mailboxSize  int
	pingInterval time.Duration
	pingTimeout  time.Duration
}

func NewWSHandler(cfg *config.Config, logger *slog.Logger, presence service.Presencer, relay service.Relayer) *WSHandler {
	return &WSHandler{
		logger:   logger,
		presence: presence,
		relay:    relay,
		upgrader: websocket.Upgrader{
			// Origin checks are done by the CORS layer in front of this handler.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mailboxSize:  cfg.Transport.MailboxSize,
		pingInterval: cfg.Transport.PingInterval,
		pingTimeout:  cfg.Transport.PingTimeout,
	}
}

// IdentityFromRequest reads the caller's user id. The query parameter wins over
// the header. The value is trusted as-is.
func IdentityFromRequest(r *http.Request) (string, error) {
	if id := strings.TrimSpace(r.URL.Query().Get(QueryUserID)); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		return id, nil
	}
	return "", ErrMissingIdentity
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. EXTRACT USER ID before anything touches the registry.
	userID, err := IdentityFromRequest(r)
	if err != nil {
		metrics.HandshakeRejected.WithLabelValues(TransportName).Inc()
		h.logger.Warn("WS_HANDSHAKE_REJECTED", "err", err, "remote_addr", r.RemoteAddr)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "err", err, "user_id", userID)
		return
	}
	defer ws.Close()

	ctx := r.Context()
	conn := registry.NewConnector(ctx, userID, h.mailboxSize, registry.ConnectMetadata{
		Transport: TransportName,
		RemoteIP:  remoteIP(r),
		UserAgent: r.UserAgent(),
	})

	// 3. REGISTER VIA THE SAME SERVICE AS SOCKET.IO
	if err := h.presence.Connect(ctx, conn); err != nil {
		conn.Close()
		return
	}

	log := h.logger.With("user_id", userID, "conn_id", conn.GetID())
	log.Debug("WS_OPENED")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ws, conn, log)
	}()

	// 4. READ LOOP until the peer goes away or the writer gives up.
	h.readPump(ctx, ws, conn, log)

	// 5. SINGLE TEARDOWN PATH
	h.presence.Disconnect(ctx, conn)
	<-writerDone
	log.Debug("WS_CLOSED", "dropped", conn.Dropped())
}

func (h *WSHandler) readPump(ctx context.Context, ws *websocket.Conn, conn registry.Mailbox, log *slog.Logger) {
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.pingTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.pingTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("WS_READ_FAILED", "err", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.pingTimeout))

		h.handleFrame(ctx, conn, data, log)
	}
}

func (h *WSHandler) handleFrame(ctx context.Context, conn registry.Connector, data []byte, log *slog.Logger) {
	// [PANIC_RECOVERY] a bad frame must not take the connection down with it.
	defer func() {
		if r := recover(); r != nil {
			log.Error("PANIC_RECOVERED", "err", r, "stack", string(debug.Stack()))
		}
	}()

	frame, err := wsmarshaller.UnmarshallFrame(data)
	if err != nil {
		log.Warn("WS_FRAME_REJECTED", "err", err)
		return
	}

	switch frame.Event {
	case event.NameSendMessage:
		p, err := wsmarshaller.DecodeSendMessage(frame.Payload)
		if err != nil {
			log.Warn("WS_FRAME_REJECTED", "err", err, "event", frame.Event)
			return
		}
		h.relay.Relay(ctx, conn, p)
	case event.NameNewUser:
		// Legacy clients announce themselves after connecting; identity already
		// came from the handshake.
		log.Debug("WS_LEGACY_EVENT_IGNORED", "event", frame.Event)
	default:
		log.Debug("WS_UNKNOWN_EVENT", "event", frame.Event)
	}
}

// writePump is the only goroutine writing to ws. It exits when the mailbox is
// closed by Disconnect or Shutdown, or on the first write failure.
func (h *WSHandler) writePump(ws *websocket.Conn, conn registry.Mailbox, log *slog.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		// Unblocks the reader if the writer stopped first.
		_ = ws.Close()
	}()

	for {
		select {
		case <-conn.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-conn.Ready():
			for _, ev := range conn.Drain() {
				data, err := wsmarshaller.MarshallDeliveryEvent(ev)
				if err != nil {
					log.Error("WS_MARSHAL_FAILED", "err", err, "event", ev.GetName())
					continue
				}
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Warn("WS_SEND_FAILED", "err", err)
					return
				}
			}

		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn("WS_PING_FAILED", "err", err)
				return
			}
		}
	}
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
