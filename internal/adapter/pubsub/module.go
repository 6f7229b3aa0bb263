package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/estately/presence-relay/config"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		func(cfg *config.Config) Topics { return NewTopics(cfg.Events.TopicPrefix) },
		func(cfg *config.Config, wl watermill.LoggerAdapter) (Bus, error) { return NewBus(cfg, wl) },
		func(cfg *config.Config, bus Bus, logger *slog.Logger) EventDispatcher {
			logger.Info("OUTBOUND_EVENTS_READY", "driver", cfg.Events.Driver, "topic_prefix", cfg.Events.TopicPrefix)
			return NewEventDispatcher(bus.Publisher, cfg.Events.BufferSize, logger.With("component", "dispatcher"))
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, d EventDispatcher, bus Bus) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				// The dispatcher closes the publisher after draining.
				if err := d.Close(ctx); err != nil {
					return err
				}
				if bus.Subscriber != nil && any(bus.Subscriber) != any(bus.Publisher) {
					return bus.Subscriber.Close()
				}
				return nil
			},
		})
	}),
)
