package streamer

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/smazurov/avsync/internal/encoder"
	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/metrics"
)

// ErrNoURL is returned by Sender.Start when no destination is known.
var ErrNoURL = errors.New("no stream URL is set")

// Status is a snapshot of the sending session.
type Status struct {
	State             media.State `json:"state" example:"active" doc:"Sender state"`
	URL               string      `json:"url" doc:"Destination URL"`
	Muted             bool        `json:"muted" doc:"Whether audio is withheld"`
	FrameRate         float64     `json:"frame_rate" example:"30" doc:"Encoder frame rate"`
	CameraIndex       int         `json:"camera_index" doc:"Selected camera"`
	AudioDeviceIndex  int         `json:"audio_device_index" doc:"Selected microphone"`
	ElapsedMs         int64       `json:"elapsed_ms" doc:"Capture time measured by the audio device clock"`
	GrabbedAudioBytes int64       `json:"grabbed_audio_bytes" doc:"PCM bytes captured this session"`
	LastError         string      `json:"last_error,omitempty" doc:"Last start or encoder failure"`
	EncoderFPS        float64     `json:"encoder_fps,omitempty" doc:"Frame rate reported by the encoder"`
	EncoderSpeed      float64     `json:"encoder_speed,omitempty" doc:"Encoding speed relative to real time"`
}

// Sender is the host-facing surface of the sending side: destination,
// device selection and a preview of the last captured frame.
type Sender struct {
	streamer *Streamer
	audio    AudioInput
	camera   media.VideoInput
	bus      *events.Bus
	logger   logging.Logger

	mu  sync.Mutex
	url string

	lastFrame atomic.Pointer[media.Frame]
}

// NewSender wraps a Streamer built from the given endpoints.
func NewSender(cfg Config, audioIn AudioInput, camera media.VideoInput, enc encoder.Encoder, bus *events.Bus, logger logging.Logger) *Sender {
	s := &Sender{
		streamer: New(cfg, audioIn, camera, enc, bus, logger),
		audio:    audioIn,
		camera:   camera,
		bus:      bus,
		logger:   logger,
	}
	s.streamer.SetFrameHandler(s.keepFrame)
	return s
}

func (s *Sender) keepFrame(f media.Frame) {
	s.lastFrame.Store(&f)
	s.bus.Publish(events.FrameAvailableEvent{Source: "sender", Image: f.Image, PTSMs: f.PTS.Milliseconds()})
}

// Streamer returns the underlying state machine.
func (s *Sender) Streamer() *Streamer { return s.streamer }

// Start streams to url, or to the stored URL when url is empty.
func (s *Sender) Start(ctx context.Context, url string) error {
	if url != "" {
		s.SetURL(url)
	}
	url = s.URL()
	if url == "" {
		s.logger.Warn("No stream URL is set")
		return ErrNoURL
	}
	return s.streamer.Start(ctx, url)
}

// Stop ends the session and drops the preview frame.
func (s *Sender) Stop() {
	s.streamer.Stop()
	s.lastFrame.Store(nil)
}

// Mute withholds audio.
func (s *Sender) Mute() { s.streamer.Mute() }

// Unmute forwards audio again.
func (s *Sender) Unmute() { s.streamer.Unmute() }

// URL returns the stored destination.
func (s *Sender) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// SetURL stores the destination used by the next Start.
func (s *Sender) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// FrameRate returns the encoder frame rate.
func (s *Sender) FrameRate() float64 { return s.streamer.FrameRate() }

// SetFrameRate sets the encoder frame rate for the next Start.
func (s *Sender) SetFrameRate(fps float64) { s.streamer.SetFrameRate(fps) }

// SetCameraIndex selects the camera for the next Start.
func (s *Sender) SetCameraIndex(index int) {
	if s.camera != nil {
		s.camera.SetDeviceIndex(index)
	}
}

// CameraIndex returns the selected camera, or -1 without a camera.
func (s *Sender) CameraIndex() int {
	if s.camera == nil {
		return -1
	}
	return s.camera.DeviceIndex()
}

// CameraDevices lists the available cameras.
func (s *Sender) CameraDevices() ([]media.Device, error) {
	if s.camera == nil {
		return nil, nil
	}
	return s.camera.AvailableDevices()
}

// SetAudioDeviceIndex selects the microphone for the next Start.
func (s *Sender) SetAudioDeviceIndex(index int) { s.audio.SetDeviceIndex(index) }

// AudioDeviceIndex returns the selected microphone.
func (s *Sender) AudioDeviceIndex() int { return s.audio.DeviceIndex() }

// AudioDevices lists the available microphones.
func (s *Sender) AudioDevices() ([]media.Device, error) { return s.audio.AvailableDevices() }

// LastFrame returns the most recent captured frame, or nil when the
// encoder is not running.
func (s *Sender) LastFrame() image.Image {
	if s.streamer.State() == media.StateStopped {
		return nil
	}
	f := s.lastFrame.Load()
	if f == nil {
		return nil
	}
	return f.Image
}

// Status returns a snapshot of the session.
func (s *Sender) Status() Status {
	st := Status{
		State:             s.streamer.State(),
		URL:               s.URL(),
		Muted:             s.streamer.IsMuted(),
		FrameRate:         s.streamer.FrameRate(),
		CameraIndex:       s.CameraIndex(),
		AudioDeviceIndex:  s.audio.DeviceIndex(),
		ElapsedMs:         s.audio.ElapsedMilliseconds(),
		GrabbedAudioBytes: s.audio.GrabbedAudioDataSize(),
	}
	if err := s.streamer.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if m := metrics.GetFFmpegMetrics(encoder.MetricsPipeline); m != nil {
		st.EncoderFPS = m.FPS
		st.EncoderSpeed = m.Speed
	}
	return st
}
