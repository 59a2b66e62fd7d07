// Package streamer orchestrates the sending side: camera and microphone
// capture feeding an encoder that pushes one stream to a network sink.
package streamer

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/avsync/internal/audio"
	"github.com/smazurov/avsync/internal/encoder"
	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/metrics"
)

// DefaultMuteWindow is the startup period during which captured audio is
// replaced by silence.
const DefaultMuteWindow = time.Second

// DefaultFrameRate is used when no frame rate is configured.
const DefaultFrameRate = 30

// AudioInput is the capture endpoint the Streamer drives. *audio.Grabber
// implements it.
type AudioInput interface {
	media.Endpoint
	Format() media.AudioFormat
	SetDataHandler(h audio.DataAvailableHandler)
	SetStateHandler(h func(media.State))
	SetDeviceIndex(index int)
	DeviceIndex() int
	AvailableDevices() ([]media.Device, error)
	ElapsedMilliseconds() int64
	GrabbedAudioDataSize() int64
}

// frameSizer is implemented by video inputs that know their negotiated size.
type frameSizer interface {
	FrameSize() image.Point
}

type stateNotifier interface {
	SetStateHandler(h func(media.State))
}

// Config holds the encoder settings the Streamer applies on every Start.
// URL, Audio and VideoSize in Encoder are filled in by Start.
type Config struct {
	MuteWindow time.Duration
	FrameRate  float64
	VideoSize  image.Point // zero uses the camera's size
	Encoder    encoder.Params
}

// Streamer is the sender state machine:
// Stopped -> Active -> Suspended -> Active -> Stopped.
type Streamer struct {
	audio  AudioInput
	video  media.VideoInput
	enc    encoder.Encoder
	bus    *events.Bus
	logger logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	cfg     Config
	url     string
	lastErr error
	cancel  context.CancelFunc

	state     atomic.Value // media.State
	muted     atomic.Bool
	muteUntil atomic.Int64 // unix nanoseconds
	onFrame   atomic.Pointer[media.FrameHandler]
}

// New creates a Streamer. video may be nil for an audio-only stream.
func New(cfg Config, audioIn AudioInput, videoIn media.VideoInput, enc encoder.Encoder, bus *events.Bus, logger logging.Logger) *Streamer {
	if cfg.MuteWindow < 0 {
		cfg.MuteWindow = 0
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	s := &Streamer{
		audio:  audioIn,
		video:  videoIn,
		enc:    enc,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		cfg:    cfg,
	}
	s.state.Store(media.StateStopped)

	audioIn.SetDataHandler(s.handleAudio)
	audioIn.SetStateHandler(s.endpointStateHandler(media.CapAudioInput))
	if videoIn != nil {
		videoIn.SetFrameHandler(s.handleFrame)
		if n, ok := videoIn.(stateNotifier); ok {
			n.SetStateHandler(s.endpointStateHandler(media.CapVideoInput))
		}
	}
	enc.SetExitHandler(s.handleEncoderExit)
	return s
}

// SetFrameHandler registers a consumer for captured frames, e.g. a preview.
// It runs on the camera's goroutine.
func (s *Streamer) SetFrameHandler(h media.FrameHandler) {
	s.onFrame.Store(&h)
}

// SetFrameRate sets the encoder frame rate used by the next Start.
func (s *Streamer) SetFrameRate(fps float64) {
	if fps <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.FrameRate = fps
}

// FrameRate returns the configured frame rate.
func (s *Streamer) FrameRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.FrameRate
}

// State returns the current state.
func (s *Streamer) State() media.State {
	return s.state.Load().(media.State)
}

// URL returns the destination of the current or last session.
func (s *Streamer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// LastError returns the error of the last failed start or encoder exit.
func (s *Streamer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// IsMuted reports whether captured audio is currently withheld, either by
// Mute or by the startup window.
func (s *Streamer) IsMuted() bool {
	return s.muted.Load() || s.inStartupWindow()
}

func (s *Streamer) inStartupWindow() bool {
	return s.now().UnixNano() < s.muteUntil.Load()
}

// Start begins capturing and encoding to url. It is a no-op unless stopped.
// On failure every part started so far is stopped again and the error is
// both returned and published. Cancelling ctx stops the session.
func (s *Streamer) Start(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != media.StateStopped {
		return nil
	}
	if url == "" {
		return s.failLocked(media.NewError(media.KindEncoderOpen, "no destination URL", nil))
	}
	s.url = url

	if s.video != nil {
		if err := s.video.Start(); err != nil {
			return s.failLocked(err)
		}
	}
	if err := s.audio.Start(); err != nil {
		s.stopVideo()
		return s.failLocked(err)
	}

	params := s.cfg.Encoder
	params.URL = url
	params.Audio = s.audio.Format()
	params.FrameRate = s.cfg.FrameRate
	params.VideoSize = s.videoSize()
	if err := s.enc.Open(params); err != nil {
		s.audio.Stop()
		s.stopVideo()
		return s.failLocked(err)
	}

	s.muteUntil.Store(s.now().Add(s.cfg.MuteWindow).UnixNano())
	s.lastErr = nil
	s.setState(media.StateActive)

	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		<-sessionCtx.Done()
		if ctx.Err() != nil {
			s.Stop()
		}
	}()

	s.logger.Info("Streamer started", "url", url, "mute_window", s.cfg.MuteWindow)
	return nil
}

func (s *Streamer) videoSize() image.Point {
	if s.video == nil {
		return image.Point{}
	}
	if s.cfg.VideoSize.X > 0 && s.cfg.VideoSize.Y > 0 {
		return s.cfg.VideoSize
	}
	if fs, ok := s.video.(frameSizer); ok {
		if size := fs.FrameSize(); size.X > 0 && size.Y > 0 {
			return size
		}
	}
	size, err := s.video.MaximumFrameSize(s.video.DeviceIndex())
	if err != nil {
		s.logger.Warn("Unable to determine camera frame size", "error", err)
		return image.Point{}
	}
	return size
}

func (s *Streamer) stopVideo() {
	if s.video != nil {
		s.video.Stop()
	}
}

// Stop stops both capture endpoints and the encoder. No-op when stopped.
func (s *Streamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == media.StateStopped {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	// State first so callbacks still in flight stop forwarding.
	s.setState(media.StateStopped)

	s.stopVideo()
	s.audio.Stop()
	if err := s.enc.Close(); err != nil {
		s.logger.Warn("Encoder did not stop cleanly", "error", err)
	}
	s.muteUntil.Store(0)
	s.logger.Info("Streamer stopped", "url", s.url, "grabbed_bytes", s.audio.GrabbedAudioDataSize())
}

// Pause suspends both capture endpoints. Only valid when active.
func (s *Streamer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != media.StateActive {
		return
	}
	s.setState(media.StateSuspended)
	s.audio.Suspend()
	if s.video != nil {
		s.video.Suspend()
	}
}

// Resume resumes both capture endpoints. Only valid when suspended.
func (s *Streamer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != media.StateSuspended {
		return
	}
	s.audio.Resume()
	if s.video != nil {
		s.video.Resume()
	}
	s.setState(media.StateActive)
}

// Mute withholds captured audio until Unmute. Capture keeps running.
func (s *Streamer) Mute() {
	if !s.muted.Swap(true) {
		s.logger.Info("Sender audio muted")
	}
}

// Unmute resumes forwarding audio. It does not shorten the startup window.
func (s *Streamer) Unmute() {
	if s.muted.Swap(false) {
		s.logger.Info("Sender audio unmuted")
	}
}

// handleAudio runs on the capture device thread. Withheld audio is replaced
// by silence of the same length so the encoder's audio clock keeps pace
// with video.
func (s *Streamer) handleAudio(data []byte, _ int64) {
	if s.State() != media.StateActive {
		return
	}
	if s.IsMuted() {
		metrics.AddMutedAudioBytes(len(data))
		clear(data)
	}
	if err := s.enc.EncodeAudio(data); err != nil && !errors.Is(err, encoder.ErrNotRunning) {
		s.logger.Debug("Failed to queue audio", "error", err)
	}
}

func (s *Streamer) handleFrame(f media.Frame) {
	if s.State() != media.StateActive {
		return
	}
	if err := s.enc.EncodeVideo(f.Image); err != nil && !errors.Is(err, encoder.ErrNotRunning) {
		s.logger.Debug("Failed to queue frame", "error", err)
	}
	if h := s.onFrame.Load(); h != nil && *h != nil {
		(*h)(f)
	}
}

func (s *Streamer) handleEncoderExit(err error) {
	exited := events.ProcessExitedEvent{Name: "encoder", Timestamp: timestamp()}
	if err != nil {
		exited.Error = err.Error()
	}
	s.bus.Publish(exited)

	if s.State() == media.StateStopped {
		return
	}
	s.mu.Lock()
	s.lastErr = media.NewError(media.KindEncoderOpen, "encoder exited", err)
	s.mu.Unlock()
	s.publishError(s.LastError())
	s.Stop()
}

func (s *Streamer) endpointStateHandler(c media.Capability) func(media.State) {
	return func(st media.State) {
		s.bus.Publish(events.EndpointStateChangedEvent{
			Capability: c.String(),
			State:      string(st),
			Timestamp:  timestamp(),
		})
	}
}

func (s *Streamer) failLocked(err error) error {
	s.lastErr = err
	s.logger.Error("Streamer failed to start", "url", s.url, "error", err)
	s.publishError(err)
	return err
}

func (s *Streamer) publishError(err error) {
	kind := "UNKNOWN"
	var me *media.Error
	if errors.As(err, &me) {
		kind = string(me.Kind)
	}
	s.bus.Publish(events.SenderErrorEvent{Kind: kind, Message: err.Error(), Timestamp: timestamp()})
}

func (s *Streamer) setState(st media.State) {
	s.state.Store(st)
	s.bus.Publish(events.SenderStateChangedEvent{State: string(st), URL: s.url, Timestamp: timestamp()})
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
