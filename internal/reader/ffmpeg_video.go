package reader

import (
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"

	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/process"
	"github.com/smazurov/avsync/internal/video"
)

// decoderProcess is the part of *process.Process the video decoder uses.
type decoderProcess interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Stop() int
}

func startDecoder(cfg process.Config, logger logging.Logger) (decoderProcess, error) {
	p, err := process.Start(cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FFmpegVideoDecoder decodes Annex-B H.264 access units through an ffmpeg
// subprocess and returns RGBA frames. Frames are paired with input PTS in
// arrival order, so the stream must not use B-frames.
type FFmpegVideoDecoder struct {
	proc   decoderProcess
	size   image.Point
	logger logging.Logger

	mu      sync.Mutex
	pts     []time.Duration
	ready   []media.Frame
	readErr error
	done    chan struct{}
}

// NewFFmpegVideoDecoderFactory returns a Components.VideoDecoder that runs
// launcher (default "ffmpeg") for each H.264 stream.
func NewFFmpegVideoDecoderFactory(launcher string, options []ffmpeg.OptionType, logger logging.Logger) func(StreamInfo, image.Point) (VideoDecoder, error) {
	return func(info StreamInfo, size image.Point) (VideoDecoder, error) {
		return newFFmpegVideoDecoder(launcher, options, info, size, logger, startDecoder)
	}
}

func newFFmpegVideoDecoder(launcher string, options []ffmpeg.OptionType, info StreamInfo, size image.Point,
	logger logging.Logger, start func(process.Config, logging.Logger) (decoderProcess, error),
) (*FFmpegVideoDecoder, error) {
	if info.Codec != core.CodecH264 {
		return nil, fmt.Errorf("unsupported video codec %q", info.Codec)
	}
	args, err := ffmpeg.BuildDecodeArgs(ffmpeg.DecodeParams{Width: size.X, Height: size.Y, Options: options})
	if err != nil {
		return nil, err
	}

	proc, err := start(process.Config{
		Name:         "decoder",
		Launcher:     launcher,
		Args:         args,
		Stdin:        true,
		Stdout:       true,
		OutputLogger: logger,
		Parser:       ffmpeg.ParseLogLevel,
	}, logger)
	if err != nil {
		return nil, err
	}

	d := &FFmpegVideoDecoder{
		proc:   proc,
		size:   size,
		logger: logger,
		done:   make(chan struct{}),
	}
	go d.readFrames()
	return d, nil
}

func (d *FFmpegVideoDecoder) readFrames() {
	defer close(d.done)

	buf := make([]byte, video.FrameBytes(d.size))
	for {
		if _, err := io.ReadFull(d.proc.Stdout(), buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				d.mu.Lock()
				d.readErr = err
				d.mu.Unlock()
			}
			return
		}
		img := video.FrameFromRGB24(buf, d.size.X, d.size.Y)

		d.mu.Lock()
		var pts time.Duration
		if len(d.pts) > 0 {
			pts = d.pts[0]
			d.pts = d.pts[1:]
		}
		d.ready = append(d.ready, media.Frame{Image: img, PTS: pts})
		d.mu.Unlock()
	}
}

// Decode writes one access unit to the decoder and returns every frame
// decoded so far. An empty result means the decoder needs more data.
func (d *FFmpegVideoDecoder) Decode(pkt Packet) ([]media.Frame, error) {
	d.mu.Lock()
	d.pts = append(d.pts, pkt.PTS)
	d.mu.Unlock()

	_, err := d.proc.Stdin().Write(pkt.Payload)
	if err != nil {
		d.mu.Lock()
		d.pts = d.pts[:len(d.pts)-1]
		d.mu.Unlock()
		err = fmt.Errorf("write to decoder: %w", err)
	}

	d.mu.Lock()
	frames := d.ready
	d.ready = nil
	if err == nil && d.readErr != nil {
		err = d.readErr
	}
	d.mu.Unlock()
	return frames, err
}

// Close stops the decoder process.
func (d *FFmpegVideoDecoder) Close() error {
	code := d.proc.Stop()
	<-d.done
	if code != 0 && code != 255 {
		d.logger.Debug("Video decoder exited", "exit_code", code)
	}
	return nil
}
