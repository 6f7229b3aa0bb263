package cmd

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/estately/presence-relay/config"
	"go.uber.org/fx/fxevent"
)

// ProvideLogger builds the process logger and installs it as the slog default.
// The level is shared with config so a config file edit applies immediately.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.IsDevelopment(),
	}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", ServiceName,
		"namespace", ServiceNamespace,
		"version", version,
		"commit", commit,
		"branch", branch,
	)
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

// ProvideFxLogger keeps fx's own lifecycle output on the same handler.
func ProvideFxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
	l.UseLogLevel(slog.LevelDebug)
	return l
}
