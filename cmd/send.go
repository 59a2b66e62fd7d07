package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/avsync/internal/app"
	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/logging"
)

// CreateSendCmd creates the send command.
func CreateSendCmd() *cobra.Command {
	var withRelay bool

	cmd := &cobra.Command{
		Use:   "send [url]",
		Short: "Capture microphone and camera and push them to a URL",
		Long: `Runs the sender without the HTTP API until interrupted. The URL defaults to sender.url. ` +
			`With --relay the local RTSP relay is started too, so receivers can pull from this host.`,
		Args: cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(_ *cobra.Command, args []string, opts *app.Options) {
			logger := logging.GetLogger("send")

			if !withRelay {
				opts.RelayListen = ""
			}
			a, err := app.New(opts)
			if err != nil {
				logger.Error("Failed to initialize", "error", err)
				os.Exit(1)
			}
			if err := a.StartRelay(); err != nil {
				logger.Error("Failed to start RTSP relay", "error", err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			exited := make(chan events.ProcessExitedEvent, 1)
			unsubscribe := a.Bus.Subscribe(func(e events.ProcessExitedEvent) {
				select {
				case exited <- e:
				default:
				}
			})
			defer unsubscribe()

			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			if err := a.Sender.Start(ctx, url); err != nil {
				logger.Error("Failed to start sender", "error", err)
				_ = a.Close()
				os.Exit(1)
			}
			logger.Info("Sending", "url", a.Sender.URL())

			exitCode := 0
			select {
			case <-ctx.Done():
				logger.Info("Interrupted, stopping")
			case ev := <-exited:
				logger.Error("Encoder exited", "error", ev.Error)
				exitCode = 1
			}

			if err := a.Close(); err != nil {
				logger.Warn("Error releasing devices", "error", err)
			}
			os.Exit(exitCode)
		}),
	}

	cmd.Flags().BoolVar(&withRelay, "relay", false, "Start the local RTSP relay")

	return cmd
}
