package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/monitor"
	"github.com/urfave/cli/v2"
)

const (
	ServiceName      = "presence-relay"
	ServiceNamespace = "estately"
)

// Set with -ldflags at build time.
var (
	version = "0.0.0"
	commit  = "hash"
	branch  = "branch"
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Realtime presence and chat message relay",
		Version: version,
		Commands: []*cli.Command{
			serverCmd(),
			monitorCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the socket.io / WebSocket relay",
		// Flags belong to the pflag set shared with viper; see config.NewFlagSet.
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			fs := config.NewFlagSet()
			if err := fs.Parse(c.Args().Slice()); err != nil {
				return err
			}

			cfg, err := config.LoadConfig(fs)
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func monitorCmd() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"m"},
		Usage:   "Open a terminal dashboard for a running relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "localhost:4000",
				Usage: "Relay HTTP address",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: time.Second,
				Usage: "Poll interval",
			},
		},
		Action: func(c *cli.Context) error {
			client := monitor.NewClient(c.String("addr"))
			return monitor.NewDashboard(client, c.Duration("interval")).Run(c.Context)
		},
	}
}
