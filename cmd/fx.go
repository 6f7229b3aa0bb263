package cmd

import (
	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/adapter/pubsub"
	"github.com/estately/presence-relay/internal/domain/registry"
	httphandler "github.com/estately/presence-relay/internal/handler/http"
	"github.com/estately/presence-relay/internal/handler/inbound"
	"github.com/estately/presence-relay/internal/handler/socketio"
	"github.com/estately/presence-relay/internal/handler/ws"
	"github.com/estately/presence-relay/internal/service"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		fx.WithLogger(ProvideFxLogger),
		pubsub.Module,
		registry.Module,
		service.Module,
		socketio.Module,
		ws.Module,
		httphandler.Module,
		inbound.Module,
	)
}
