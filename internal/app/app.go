// Package app assembles the sender, receiver and relay from command options.
package app

import (
	"errors"
	"fmt"

	"github.com/smazurov/avsync/internal/audio"
	"github.com/smazurov/avsync/internal/encoder"
	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/reader"
	"github.com/smazurov/avsync/internal/relay"
	"github.com/smazurov/avsync/internal/streamer"
	"github.com/smazurov/avsync/internal/tally"
	"github.com/smazurov/avsync/internal/video"
)

// App holds the wired components of one process.
type App struct {
	Bus      *events.Bus
	Backend  audio.ClosableBackend
	Grabber  *audio.Grabber
	Player   *audio.Player
	Camera   *video.FFmpegSource
	Sender   *streamer.Sender
	Receiver *reader.Reader
	Relay    *relay.Server    // nil when disabled
	Tally    *tally.Indicator // nil when disabled

	// FFmpegOptions are passed to every ffmpeg process.
	FFmpegOptions []ffmpeg.OptionType

	relayAddr string
	logger    logging.Logger
}

// New builds every component from opts. Nothing is started.
func New(opts *Options) (*App, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	format, _ := opts.AudioFormat()
	ffOpts, _ := opts.FFmpegOptionTypes()

	audioLogger := logging.GetLogger("audio")
	backend, err := audio.NewBackend(opts.AudioBackend, audioLogger)
	if err != nil {
		return nil, fmt.Errorf("audio backend: %w", err)
	}

	bus := events.New()

	grabber := audio.NewGrabber(backend, audioLogger)
	grabber.SetDeviceIndex(opts.AudioInput)
	grabber.SetFormat(format)
	grabber.SetBufferFrames(opts.AudioBufferFrames)

	player := audio.NewPlayer(backend, audioLogger)
	player.SetDeviceIndex(opts.AudioOutput)
	player.SetBufferFrames(opts.PlaybackBufferFrames)
	player.SetMaxBuffered(opts.PlaybackMaxBuffered)

	camera := video.NewFFmpegSource(video.Config{
		Launcher:    opts.FFmpegPath,
		InputFormat: opts.CameraFormat,
		Width:       opts.CameraWidth,
		Height:      opts.CameraHeight,
		FrameRate:   opts.FrameRate,
		Warmup:      opts.CameraWarmup,
		Options:     ffOpts,
	}, logging.GetLogger("video"))

	enc := encoder.NewFFmpeg(opts.FFmpegPath, logging.GetLogger("encoder"))

	sender := streamer.NewSender(streamer.Config{
		MuteWindow: opts.MuteWindow,
		FrameRate:  opts.FrameRate,
		Encoder: encoder.Params{
			VideoCodec:   opts.VideoCodec,
			Preset:       opts.Preset,
			VideoBitrate: opts.VideoBitrate,
			AudioCodec:   opts.AudioCodec,
			AudioBitrate: opts.AudioBitrate,
			Options:      ffOpts,
		},
	}, grabber, camera, enc, bus, logging.GetLogger("streamer"))
	sender.SetCameraIndex(opts.Camera)
	sender.SetURL(opts.SenderURL)

	readerLogger := logging.GetLogger("reader")
	receiver := reader.New(reader.Config{
		LatenessBound: opts.LatenessBound,
		VideoSize:     opts.ReceiverSize(),
	}, reader.NewNetworkComponents(opts.FFmpegPath, ffOpts, readerLogger), player, bus, readerLogger)
	receiver.SetURL(opts.ReceiverURL)

	a := &App{
		Bus:       bus,
		Backend:   backend,
		Grabber:   grabber,
		Player:    player,
		Camera:    camera,
		Sender:    sender,
		Receiver:  receiver,
		relayAddr: opts.RelayListen,

		FFmpegOptions: ffOpts,
		logger:        logging.GetLogger("main"),
	}
	if opts.RelayListen != "" {
		relayLogger := logging.GetLogger("relay")
		a.Relay = relay.NewServer(relay.NewHub(relayLogger), relayLogger)
	}
	systemLogger := logging.GetLogger("system")
	if light := tally.New(opts.TallyLED, systemLogger); light != nil {
		a.Tally = tally.NewIndicator(light, bus, systemLogger)
		a.Tally.Start()
	}
	return a, nil
}

// StartRelay starts the RTSP relay if it is enabled.
func (a *App) StartRelay() error {
	if a.Relay == nil {
		return nil
	}
	if err := a.Relay.Start(a.relayAddr); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	a.logger.Info("RTSP relay listening", "addr", a.Relay.Addr().String())
	return nil
}

// Close stops both sides and releases devices. The receiver is stopped
// first and waited for so the player is idle before the backend goes away.
func (a *App) Close() error {
	a.Receiver.Stop()
	if done := a.Receiver.Done(); done != nil {
		<-done
	}
	a.Sender.Stop()

	if a.Tally != nil {
		a.Tally.Stop()
	}

	var errs []error
	if a.Relay != nil {
		if err := a.Relay.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("relay: %w", err))
		}
	}
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audio backend: %w", err))
	}
	return errors.Join(errs...)
}
