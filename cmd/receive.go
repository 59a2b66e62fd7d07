package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/avsync/internal/app"
	"github.com/smazurov/avsync/internal/logging"
)

// CreateReceiveCmd creates the receive command.
func CreateReceiveCmd() *cobra.Command {
	var statusInterval time.Duration

	cmd := &cobra.Command{
		Use:   "receive [url]",
		Short: "Play a remote stream's audio in sync with its video clock",
		Long: `Runs the receiver without the HTTP API until the stream ends or the command is interrupted. ` +
			`The URL defaults to receiver.url.`,
		Args: cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(_ *cobra.Command, args []string, opts *app.Options) {
			logger := logging.GetLogger("receive")

			opts.RelayListen = ""
			a, err := app.New(opts)
			if err != nil {
				logger.Error("Failed to initialize", "error", err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			if err := a.Receiver.Start(ctx, url); err != nil {
				logger.Error("Failed to start receiver", "error", err)
				_ = a.Close()
				os.Exit(1)
			}
			logger.Info("Receiving", "url", a.Receiver.URL())

			var tick <-chan time.Time
			if statusInterval > 0 {
				ticker := time.NewTicker(statusInterval)
				defer ticker.Stop()
				tick = ticker.C
			}

			exitCode := 0
		loop:
			for {
				select {
				case <-ctx.Done():
					logger.Info("Interrupted, stopping")
					break loop
				case <-a.Receiver.Done():
					if err := a.Receiver.LastError(); err != nil {
						logger.Error("Receiver stopped", "error", err)
						exitCode = 1
					} else {
						logger.Info("Stream ended")
					}
					break loop
				case <-tick:
					st := a.Receiver.Status()
					logger.Info("Receiver status",
						"position_ms", st.PositionMs,
						"elapsed_ms", st.ElapsedMs,
						"audio_ahead_ms", st.AheadMs,
						"has_audio", st.HasAudio,
						"has_video", st.HasVideo)
				}
			}

			if err := a.Close(); err != nil {
				logger.Warn("Error releasing devices", "error", err)
			}
			os.Exit(exitCode)
		}),
	}

	cmd.Flags().DurationVar(&statusInterval, "status-interval", 5*time.Second, "Log playback status at this interval, 0 disables")

	return cmd
}
