package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/avsync/internal/app"
	"github.com/smazurov/avsync/internal/audio"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/video"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List microphones, speakers and cameras",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(_ *cobra.Command, _ []string, opts *app.Options) {
			logger := logging.GetLogger("devices")

			backend, err := audio.NewBackend(opts.AudioBackend, logging.GetLogger("audio"))
			if err != nil {
				logger.Error("Failed to open audio backend", "error", err)
				os.Exit(1)
			}
			defer func() { _ = backend.Close() }()

			camera := video.NewFFmpegSource(video.Config{Launcher: opts.FFmpegPath}, logging.GetLogger("video"))

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tINDEX\tNAME\tDEFAULT")
			list := func(kind string, devices []media.Device, err error) {
				if err != nil {
					logger.Warn("Failed to list devices", "kind", kind, "error", err)
					return
				}
				for _, d := range devices {
					def := ""
					if d.IsDefault {
						def = "*"
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", kind, d.Index, d.Name, def)
				}
			}
			inputs, err := backend.Devices(audio.Capture)
			list("input", inputs, err)
			outputs, err := backend.Devices(audio.Playback)
			list("output", outputs, err)
			cameras, err := camera.AvailableDevices()
			list("camera", cameras, err)
			_ = w.Flush()
		}),
	}
}
