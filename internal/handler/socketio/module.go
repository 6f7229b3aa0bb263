package socketio

import (
	"context"
	"log/slog"

	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("socketio",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger, presence service.Presencer, relay service.Relayer) *Server {
		return NewServer(cfg, logger.With("transport", TransportName), presence, relay)
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				s.Close()
				return nil
			},
		})
	}),
)
