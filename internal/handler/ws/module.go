package ws

import (
	"log/slog"

	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ws",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger, presence service.Presencer, relay service.Relayer) *WSHandler {
		return NewWSHandler(cfg, logger.With("transport", TransportName), presence, relay)
	}),
)
