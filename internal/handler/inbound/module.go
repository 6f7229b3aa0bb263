package inbound

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/adapter/pubsub"
	"github.com/estately/presence-relay/internal/service"
	"go.uber.org/fx"
)

// Module consumes server-originated pushes when events.inbound is set.
var Module = fx.Module("inbound",
	fx.Invoke(func(
		lc fx.Lifecycle,
		cfg *config.Config,
		bus pubsub.Bus,
		topics pubsub.Topics,
		pusher service.Pusher,
		wl watermill.LoggerAdapter,
		logger *slog.Logger,
	) error {
		if !cfg.Events.Inbound || !bus.Enabled() {
			return nil
		}

		router, err := NewWatermillRouter(wl)
		if err != nil {
			return err
		}
		h := NewMessageHandler(logger.With("component", "inbound"), pusher, topics)
		if err := h.RegisterHandlers(router, bus); err != nil {
			return err
		}

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := router.Run(context.Background()); err != nil {
						logger.Error("INBOUND_ROUTER_FAILED", "err", err)
					}
				}()
				select {
				case <-router.Running():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			OnStop: func(ctx context.Context) error {
				return router.Close()
			},
		})
		return nil
	}),
)
