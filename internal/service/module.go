package service

import (
	"log/slog"

	"github.com/estately/presence-relay/config"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		NewCounters,
		func(cfg *config.Config) RelayOptions {
			return RelayOptions{
				NotifyUndelivered: cfg.Relay.NotifyUndelivered,
				DedupSize:         cfg.Relay.DedupSize,
			}
		},
		fx.Annotate(
			NewPresenceService,
			fx.As(new(Presencer)),
		),
		NewRelayService,
		func(r *RelayService) Pusher { return r },

		// [DECORATION_LAYER] Transports only ever see the logging decorator.
		// fx.Decorate would not reach the sibling transport modules.
		func(r *RelayService, logger *slog.Logger) Relayer {
			return NewRelayMiddleware(r, logger.With("component", "relay"))
		},
	),
)
