package registry

import (
	"context"
	"log/slog"

	"github.com/estately/presence-relay/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		// [CLEAN_INJECTION] Configure the registry using functional options
		func(cfg *config.Config, logger *slog.Logger) *Registry {
			return New(
				WithPolicy(Policy(cfg.Presence.Policy)),
				WithLogger(logger.With("component", "registry")),
			)
		},
		func(r *Registry) Registrar { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r Registrar) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				r.Shutdown() // [GRACEFUL_SHUTDOWN] close every live session
				return nil
			},
		})
	}),
)
