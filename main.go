package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/avsync/cmd"
	"github.com/smazurov/avsync/internal/api"
	"github.com/smazurov/avsync/internal/app"
	"github.com/smazurov/avsync/internal/config"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/metrics"
	"github.com/smazurov/avsync/internal/systemd"
	"github.com/smazurov/avsync/internal/version"
)

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *app.Options) {
		// Flags set on the command line win over the file and environment
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.LoggingConfig())
		logger := logging.GetLogger("main")
		notifier := systemd.NewNotifier(logging.GetLogger("system"))

		var (
			components *app.App
			server     *api.Server
			watcher    *config.Watcher[logging.Config]
			cancel     context.CancelFunc
		)

		hooks.OnStart(func() {
			logger.Info("Starting avsync", "version", version.String())

			var err error
			components, err = app.New(opts)
			if err != nil {
				logger.Error("Failed to initialize", "error", err)
				os.Exit(1)
			}

			// RTSP relay first so a local sender has somewhere to publish
			if startErr := components.StartRelay(); startErr != nil {
				logger.Error("Failed to start RTSP relay", "error", startErr)
				os.Exit(1)
			}

			watcher = config.NewWatcher(opts.Config, config.ReadLoggingConfig, logger)
			watcher.OnReload(func(cfg logging.Config) {
				logger.Info("Logging configuration reloaded", "level", cfg.Level)
				logging.Reconfigure(cfg)
			})
			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", watchErr)
				watcher = nil
			}

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			apiOpts := &api.Options{
				AuthUsername:   opts.AuthUsername,
				AuthPassword:   opts.AuthPassword,
				Context:        ctx,
				Sender:         components.Sender,
				Receiver:       components.Receiver,
				AudioOutputs:   components.Player,
				EventBus:       components.Bus,
				MetricsHandler: metrics.Handler(),
				FFmpegOptions:  components.FFmpegOptions,
			}
			if components.Relay != nil {
				apiOpts.Relay = components.Relay.Hub()
			}
			server = api.NewServer(apiOpts)

			go notifier.Watchdog(ctx, nil)
			notifier.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}
			if cancel != nil {
				cancel()
			}
			if watcher != nil {
				_ = watcher.Stop()
			}
			// Sessions and devices after the API stops accepting requests
			if components != nil {
				if closeErr := components.Close(); closeErr != nil {
					logger.Error("Error releasing devices", "error", closeErr)
				}
			}
		})
	})

	cli.Root().Use = "avsync"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateSendCmd())
	cli.Root().AddCommand(cmd.CreateReceiveCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())

	cli.Run()
}
