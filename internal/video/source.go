// Package video captures camera frames through an ffmpeg subprocess.
package video

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/metrics"
	"github.com/smazurov/avsync/internal/process"
)

// DefaultWarmup is how long camera output is discarded after Start while
// exposure and white balance settle.
const DefaultWarmup = 500 * time.Millisecond

// Config describes how the camera is opened.
type Config struct {
	Launcher    string // ffmpeg command, defaults to "ffmpeg"
	InputFormat string // v4l2 input format, e.g. mjpeg
	Width       int    // 0 selects the largest size the device reports
	Height      int
	FrameRate   float64 // 0 lets the driver choose
	Warmup      time.Duration
	Options     []ffmpeg.OptionType
}

// frameProcess is the part of *process.Process the source uses.
type frameProcess interface {
	Stdout() io.Reader
	Stop() int
	Done() <-chan struct{}
}

func startProcess(cfg process.Config, logger logging.Logger) (frameProcess, error) {
	p, err := process.Start(cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FFmpegSource is a media.VideoInput reading RGB24 frames from a V4L2
// device through ffmpeg.
type FFmpegSource struct {
	cfg    Config
	logger logging.Logger

	sysfsRoot string
	devRoot   string
	start     func(process.Config, logging.Logger) (frameProcess, error)
	probe     func(devicePath string) ([]string, error)
	now       func() time.Time

	mu          sync.Mutex
	deviceIndex int
	frameSize   image.Point
	proc        frameProcess
	readerDone  chan struct{}
	lastErr     error
	onFrame     media.FrameHandler
	onState     func(media.State)
	notify      bool

	state atomic.Value // media.State
}

var _ media.VideoInput = (*FFmpegSource)(nil)

// NewFFmpegSource creates a camera source. The device index defaults to 0.
func NewFFmpegSource(cfg Config, logger logging.Logger) *FFmpegSource {
	if cfg.Launcher == "" {
		cfg.Launcher = "ffmpeg"
	}
	s := &FFmpegSource{
		cfg:       cfg,
		logger:    logger,
		sysfsRoot: DefaultSysfsRoot,
		devRoot:   DefaultDevRoot,
		start:     startProcess,
		now:       time.Now,
	}
	s.probe = func(path string) ([]string, error) {
		return probeFormats(s.cfg.Launcher, path, s.logger)
	}
	s.state.Store(media.StateStopped)
	return s
}

// Capability implements media.Endpoint.
func (s *FFmpegSource) Capability() media.Capability { return media.CapVideoInput }

// SetDeviceIndex selects the camera. It takes effect on the next Start.
func (s *FFmpegSource) SetDeviceIndex(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceIndex = index
}

// DeviceIndex returns the selected camera index.
func (s *FFmpegSource) DeviceIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceIndex
}

// SetFrameHandler registers the frame consumer. It applies from the next Start.
func (s *FFmpegSource) SetFrameHandler(h media.FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = h
}

// SetStateHandler registers a callback for state transitions.
func (s *FFmpegSource) SetStateHandler(h func(media.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = h
}

// AvailableDevices lists V4L2 capture devices.
func (s *FFmpegSource) AvailableDevices() ([]media.Device, error) {
	return listDevices(s.sysfsRoot)
}

// DevicePath returns the device node for an index.
func (s *FFmpegSource) DevicePath(index int) string {
	return fmt.Sprintf("%s/video%d", s.devRoot, index)
}

// MaximumFrameSize returns the largest frame size the camera reports.
func (s *FFmpegSource) MaximumFrameSize(deviceIndex int) (image.Point, error) {
	if err := s.checkDevice(deviceIndex); err != nil {
		return image.Point{}, err
	}
	lines, err := s.probe(s.DevicePath(deviceIndex))
	if err != nil {
		return image.Point{}, media.NewError(media.KindDeviceOpen, "unable to query camera formats", err)
	}
	size, ok := largest(parseFrameSizes(lines))
	if !ok {
		return image.Point{}, media.NewError(media.KindDeviceOpen, fmt.Sprintf("camera %d reported no frame sizes", deviceIndex), nil)
	}
	return size, nil
}

// FrameSize returns the size frames are delivered at while active.
func (s *FFmpegSource) FrameSize() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameSize
}

// State implements media.Endpoint.
func (s *FFmpegSource) State() media.State {
	return s.state.Load().(media.State)
}

// LastError returns the error recorded by the last failed operation.
func (s *FFmpegSource) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *FFmpegSource) checkDevice(index int) error {
	devices, err := listDevices(s.sysfsRoot)
	if err != nil {
		return media.NewError(media.KindDeviceNotFound, "unable to enumerate cameras", err)
	}
	for _, d := range devices {
		if d.Index == index {
			return nil
		}
	}
	return media.NewError(media.KindDeviceNotFound, fmt.Sprintf("no camera with index %d", index), nil)
}

// Start launches the capture process. It is a no-op unless stopped.
func (s *FFmpegSource) Start() error {
	s.mu.Lock()
	defer s.unlock()

	if s.State() != media.StateStopped {
		return nil
	}

	if err := s.checkDevice(s.deviceIndex); err != nil {
		s.lastErr = err
		s.logger.Warn("Camera not found", "device_index", s.deviceIndex, "error", err)
		return err
	}

	size := image.Pt(s.cfg.Width, s.cfg.Height)
	if size.X <= 0 || size.Y <= 0 {
		maxSize, err := s.MaximumFrameSize(s.deviceIndex)
		if err != nil {
			s.lastErr = err
			return err
		}
		size = maxSize
	}

	args, err := ffmpeg.BuildCaptureArgs(ffmpeg.CaptureParams{
		DevicePath:  s.DevicePath(s.deviceIndex),
		InputFormat: s.cfg.InputFormat,
		Width:       size.X,
		Height:      size.Y,
		FrameRate:   s.cfg.FrameRate,
		Options:     s.cfg.Options,
	})
	if err != nil {
		s.lastErr = media.NewError(media.KindInvalidFormat, "invalid capture parameters", err)
		return s.lastErr
	}

	proc, err := s.start(process.Config{
		Name:         "camera",
		Launcher:     s.cfg.Launcher,
		Args:         args,
		Stdout:       true,
		OutputLogger: s.logger,
		Parser:       ffmpeg.ParseLogLevel,
	}, s.logger)
	if err != nil {
		s.lastErr = media.NewError(media.KindDeviceOpen, "unable to start camera", err)
		s.logger.Error("Failed to start camera", "device_index", s.deviceIndex, "error", err)
		return s.lastErr
	}

	warmup := s.cfg.Warmup
	if warmup < 0 {
		warmup = 0
	}

	done := make(chan struct{})
	s.proc = proc
	s.readerDone = done
	s.frameSize = size
	s.lastErr = nil
	s.setStateLocked(media.StateActive)
	go s.readFrames(proc, size, s.onFrame, warmup, done)

	s.logger.Info("Camera started", "device_index", s.deviceIndex, "size", fmt.Sprintf("%dx%d", size.X, size.Y))
	return nil
}

func (s *FFmpegSource) readFrames(proc frameProcess, size image.Point, handler media.FrameHandler, warmup time.Duration, done chan struct{}) {
	defer close(done)

	buf := make([]byte, FrameBytes(size))
	started := s.now()
	out := proc.Stdout()

	var err error
	for {
		if _, err = io.ReadFull(out, buf); err != nil {
			break
		}
		pts := s.now().Sub(started)
		if pts < warmup {
			metrics.AddWarmupBytes(len(buf))
			continue
		}
		if s.State() != media.StateActive || handler == nil {
			continue
		}
		handler(media.Frame{Image: FrameFromRGB24(buf, size.X, size.Y), PTS: pts})
		metrics.IncCapturedFrames()
	}

	s.mu.Lock()
	if s.proc != proc {
		// Stopped by Stop.
		s.mu.Unlock()
		return
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	s.proc = nil
	s.readerDone = nil
	s.lastErr = media.NewError(media.KindDeviceOpen, "camera stopped delivering frames", err)
	s.setStateLocked(media.StateStopped)
	s.unlock()

	s.logger.Warn("Camera output ended", "error", err)
	proc.Stop()
}

// Stop terminates the capture process and waits for the frame reader.
func (s *FFmpegSource) Stop() {
	s.mu.Lock()
	if s.State() == media.StateStopped {
		s.mu.Unlock()
		return
	}
	proc, done := s.proc, s.readerDone
	s.proc, s.readerDone = nil, nil
	s.setStateLocked(media.StateStopped)
	s.unlock()

	if proc != nil {
		proc.Stop()
		<-done
	}
	s.logger.Info("Camera stopped")
}

// Suspend stops delivering frames while the device keeps running.
func (s *FFmpegSource) Suspend() {
	s.mu.Lock()
	defer s.unlock()
	if s.State() == media.StateActive {
		s.setStateLocked(media.StateSuspended)
	}
}

// Resume restarts frame delivery after Suspend.
func (s *FFmpegSource) Resume() {
	s.mu.Lock()
	defer s.unlock()
	if s.State() == media.StateSuspended {
		s.setStateLocked(media.StateActive)
	}
}

func (s *FFmpegSource) setStateLocked(st media.State) {
	s.state.Store(st)
	s.notify = true
	metrics.SetEndpointState(media.CapVideoInput.String(), string(st))
}

func (s *FFmpegSource) unlock() {
	cb, notify := s.onState, s.notify
	s.notify = false
	st := s.State()
	s.mu.Unlock()
	if notify && cb != nil {
		cb(st)
	}
}
