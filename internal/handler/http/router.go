package httphandler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/handler/socketio"
	"github.com/estately/presence-relay/internal/handler/ws"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PresenceReader is the read side of the presence service.
type PresenceReader interface {
	Snapshot() []string
	Stats() model.HubStats
}

// Transports groups the connection endpoints mounted on the router. Either may
// be nil in tests.
type Transports struct {
	SocketIO http.Handler
	WS       http.Handler
}

func NewTransports(sio *socketio.Server, wsh *ws.WSHandler) Transports {
	return Transports{SocketIO: sio.Handler(), WS: wsh}
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger *slog.Logger, presence PresenceReader, t Transports) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ws.HeaderUserID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &handler{presence: presence}

	r.Get("/healthz", h.Health)
	r.Get("/v1/presence", h.Presence)
	r.Get("/v1/stats", h.Stats)
	r.Handle("/metrics", promhttp.Handler())

	if t.SocketIO != nil {
		// The wildcard also matches the bare "/socket.io/" engine.io endpoint.
		r.Handle(strings.TrimSuffix(cfg.SocketIO.Path, "/")+"/*", t.SocketIO)
	}
	if t.WS != nil {
		r.Get("/ws", t.WS.ServeHTTP)
	}

	return r
}
