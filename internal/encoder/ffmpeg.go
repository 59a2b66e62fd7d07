package encoder

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"sync"
	"time"

	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/metrics"
	"github.com/smazurov/avsync/internal/process"
)

// Queue depths between the capture callbacks and the pipe writers.
const (
	audioQueueDepth = 64
	videoQueueDepth = 4
)

// flushTimeout bounds how long Close waits for queued input to be written.
const flushTimeout = time.Second

// ErrNotRunning is returned by Encode calls outside an open session.
var ErrNotRunning = errors.New("encoder is not running")

// MetricsPipeline is the metrics label of the sender's encoder.
const MetricsPipeline = "sender"

// encoderProcess is the part of *process.Process the encoder uses.
type encoderProcess interface {
	Stdin() io.Writer
	ExtraInput(i int) io.Writer
	Stdout() io.Reader
	Stop() int
	Done() <-chan struct{}
	Err() error
}

func startProcess(cfg process.Config, logger logging.Logger) (encoderProcess, error) {
	p, err := process.Start(cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FFmpeg encodes through an ffmpeg subprocess: PCM on stdin, RGB24 frames
// on fd 3, progress on stdout.
type FFmpeg struct {
	launcher string
	logger   logging.Logger
	start    func(process.Config, logging.Logger) (encoderProcess, error)

	mu       sync.Mutex
	proc     encoderProcess
	audio    chan []byte
	video    chan []byte
	size     image.Point
	closing  bool
	onExit   func(error)
	writers  sync.WaitGroup
	progress sync.WaitGroup
}

var _ Encoder = (*FFmpeg)(nil)

// NewFFmpeg creates an encoder that runs launcher (default "ffmpeg").
func NewFFmpeg(launcher string, logger logging.Logger) *FFmpeg {
	return &FFmpeg{launcher: launcher, logger: logger, start: startProcess}
}

// SetExitHandler implements Encoder.
func (e *FFmpeg) SetExitHandler(h func(err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onExit = h
}

// Running reports whether a session is open.
func (e *FFmpeg) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proc != nil
}

// Open starts the encoder process.
func (e *FFmpeg) Open(p Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.proc != nil {
		return nil
	}

	hasVideo := p.VideoSize.X > 0 && p.VideoSize.Y > 0
	args, err := ffmpeg.BuildEncodeArgs(ffmpeg.EncodeParams{
		Audio:        p.Audio,
		Width:        p.VideoSize.X,
		Height:       p.VideoSize.Y,
		FrameRate:    p.FrameRate,
		VideoCodec:   p.VideoCodec,
		Preset:       p.Preset,
		VideoBitrate: p.VideoBitrate,
		AudioCodec:   p.AudioCodec,
		AudioBitrate: p.AudioBitrate,
		Progress:     true,
		OutputURL:    p.URL,
		Options:      p.Options,
	})
	if err != nil {
		return media.NewError(media.KindEncoderOpen, "invalid encoder parameters", err)
	}

	cfg := process.Config{
		Name:         "encoder",
		Launcher:     e.launcher,
		Args:         args,
		Stdin:        true,
		Stdout:       true,
		OutputLogger: e.logger,
		Parser:       ffmpeg.ParseLogLevel,
	}
	if hasVideo {
		cfg.ExtraInputs = 1
	}
	proc, err := e.start(cfg, e.logger)
	if err != nil {
		return media.NewError(media.KindEncoderOpen, "unable to start encoder", err)
	}

	e.proc = proc
	e.closing = false
	e.size = p.VideoSize
	e.audio = make(chan []byte, audioQueueDepth)
	e.writers.Add(1)
	go e.drain(proc.Stdin(), e.audio, "audio")
	if hasVideo {
		e.video = make(chan []byte, videoQueueDepth)
		e.writers.Add(1)
		go e.drain(proc.ExtraInput(0), e.video, "video")
	} else {
		e.video = nil
	}

	e.progress.Add(1)
	go func() {
		defer e.progress.Done()
		metrics.ReadProgress(MetricsPipeline, proc.Stdout())
	}()
	go e.watch(proc)

	e.logger.Info("Encoder started", "url", p.URL, "audio", p.Audio.String(), "video", fmt.Sprintf("%dx%d", p.VideoSize.X, p.VideoSize.Y))
	return nil
}

// drain writes queued buffers to w until the queue is closed. Write errors
// stop the writer; the exit watcher reports the process failure.
func (e *FFmpeg) drain(w io.Writer, queue <-chan []byte, kind string) {
	defer e.writers.Done()
	failed := false
	for buf := range queue {
		if failed {
			continue
		}
		if _, err := w.Write(buf); err != nil {
			e.logger.Debug("Encoder input closed", "input", kind, "error", err)
			failed = true
		}
	}
}

func (e *FFmpeg) watch(proc encoderProcess) {
	<-proc.Done()

	e.mu.Lock()
	if e.proc != proc || e.closing {
		e.mu.Unlock()
		return
	}
	onExit := e.onExit
	e.mu.Unlock()

	err := proc.Err()
	if err == nil {
		err = errors.New("encoder exited")
	}
	e.logger.Error("Encoder exited unexpectedly", "error", err)
	if onExit != nil {
		onExit(err)
	}
}

// EncodeAudio queues one PCM chunk. The chunk must not be modified afterwards.
func (e *FFmpeg) EncodeAudio(pcm []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil || e.closing {
		return ErrNotRunning
	}
	select {
	case e.audio <- pcm:
		metrics.AddSentAudioBytes(len(pcm))
		return nil
	default:
		e.logger.Warn("Encoder audio queue full, dropping chunk", "bytes", len(pcm))
		return nil
	}
}

// EncodeVideo converts img to RGB24 and queues it. Frames whose size does
// not match the session are rejected.
func (e *FFmpeg) EncodeVideo(img image.Image) error {
	e.mu.Lock()
	size, queue := e.size, e.video
	running := e.proc != nil && !e.closing
	e.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	if queue == nil {
		return nil
	}
	if img.Bounds().Size() != size {
		return fmt.Errorf("frame size %v does not match encoder size %v", img.Bounds().Size(), size)
	}
	buf := toRGB24(img)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil || e.closing {
		return ErrNotRunning
	}
	select {
	case e.video <- buf:
		metrics.IncSentVideoFrames()
	default:
		e.logger.Debug("Encoder video queue full, dropping frame")
	}
	return nil
}

// Close flushes queued input, closes the pipes and stops the process.
func (e *FFmpeg) Close() error {
	e.mu.Lock()
	proc := e.proc
	if proc == nil || e.closing {
		e.mu.Unlock()
		return nil
	}
	e.closing = true
	close(e.audio)
	if e.video != nil {
		close(e.video)
	}
	e.mu.Unlock()

	flushed := make(chan struct{})
	go func() {
		e.writers.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(flushTimeout):
		e.logger.Warn("Encoder input not drained, stopping anyway", "timeout", flushTimeout)
	}
	code := proc.Stop()
	<-flushed
	e.progress.Wait()

	e.mu.Lock()
	e.proc = nil
	e.audio, e.video = nil, nil
	e.mu.Unlock()

	e.logger.Info("Encoder stopped", "exit_code", code)
	if code != 0 && code != 255 {
		return fmt.Errorf("encoder exited with code %d", code)
	}
	return nil
}

// toRGB24 packs img into RGB24 bytes.
func toRGB24(img image.Image) []byte {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != 4*b.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	}
	n := b.Dx() * b.Dy()
	out := make([]byte, n*3)
	for i, j := 0, 0; i < n; i, j = i+1, j+3 {
		o := i * 4
		out[j] = rgba.Pix[o]
		out[j+1] = rgba.Pix[o+1]
		out[j+2] = rgba.Pix[o+2]
	}
	return out
}
