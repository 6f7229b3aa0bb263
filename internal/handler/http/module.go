package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
)

var Module = fx.Module("http",
	fx.Provide(
		func(p service.Presencer) PresenceReader { return p },
		NewTransports,
		NewRouter,
		NewServer,
	),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, srv *http.Server, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					return err
				}
				logger.Info("HTTP_SERVER_STARTED", "addr", ln.Addr().String())

				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("HTTP_SERVER_FAILED", "err", err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
				defer cancel()
				// Hijacked WebSocket connections are not tracked by Shutdown; the
				// registry closes them in its own stop hook.
				return srv.Shutdown(ctx)
			},
		})
	}),
)

func NewServer(cfg *config.Config, router *chi.Mux) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}
}
