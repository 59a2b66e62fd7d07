package audio

import (
	"sync"
	"sync/atomic"

	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/metrics"
)

// DefaultCaptureBufferFrames is the capture period used when none is configured.
const DefaultCaptureBufferFrames = 2048

// DataAvailableHandler receives one owned PCM chunk together with the session
// time in milliseconds at which it was delivered. It runs on the device thread.
type DataAvailableHandler func(data []byte, elapsedMs int64)

// Grabber captures PCM from an input device.
type Grabber struct {
	backend Backend
	logger  logging.Logger

	mu           sync.Mutex
	deviceIndex  int
	format       media.AudioFormat
	bufferFrames int
	stream       Stream
	clock        *streamClock
	lastErr      error
	onData       DataAvailableHandler
	onState      func(media.State)
	notify       bool

	state   atomic.Value // media.State
	grabbed atomic.Int64
}

// NewGrabber creates a grabber for the given backend. The device index
// defaults to -1 and must be set before Start.
func NewGrabber(backend Backend, logger logging.Logger) *Grabber {
	g := &Grabber{
		backend:      backend,
		logger:       logger,
		deviceIndex:  -1,
		bufferFrames: DefaultCaptureBufferFrames,
	}
	g.state.Store(media.StateStopped)
	return g
}

// Capability implements media.Endpoint.
func (g *Grabber) Capability() media.Capability { return media.CapAudioInput }

// SetDeviceIndex selects the input device to capture from.
func (g *Grabber) SetDeviceIndex(index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deviceIndex = index
}

// DeviceIndex returns the selected input device index.
func (g *Grabber) DeviceIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deviceIndex
}

// SetFormat sets the capture format. It takes effect on the next Start.
func (g *Grabber) SetFormat(format media.AudioFormat) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.format = format
}

// Format returns the capture format.
func (g *Grabber) Format() media.AudioFormat {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.format
}

// SetBufferFrames sets the hardware buffer size in frames.
func (g *Grabber) SetBufferFrames(frames int) {
	if frames <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bufferFrames = frames
}

// SetDataHandler registers the consumer of captured chunks. It must be set
// before Start; a handler set later applies from the next Start.
func (g *Grabber) SetDataHandler(h DataAvailableHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onData = h
}

// SetStateHandler registers a callback for state transitions.
func (g *Grabber) SetStateHandler(h func(media.State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onState = h
}

// AvailableDevices lists devices that offer input channels.
func (g *Grabber) AvailableDevices() ([]media.Device, error) {
	return g.backend.Devices(Capture)
}

// DeviceIndexList returns the indices of all input devices.
func (g *Grabber) DeviceIndexList() ([]int, error) {
	devices, err := g.backend.Devices(Capture)
	if err != nil {
		return nil, err
	}
	indices := make([]int, 0, len(devices))
	for _, d := range devices {
		indices = append(indices, d.Index)
	}
	return indices, nil
}

// DeviceName returns the name of the input device with the given index, or
// an empty string if there is none.
func (g *Grabber) DeviceName(index int) string {
	d, err := findDevice(g.backend, Capture, index)
	if err != nil {
		return ""
	}
	return d.Name
}

// DefaultDeviceIndex returns the OS default input device.
func (g *Grabber) DefaultDeviceIndex() (int, error) {
	return g.backend.DefaultDevice(Capture)
}

// State implements media.Endpoint.
func (g *Grabber) State() media.State {
	return g.state.Load().(media.State)
}

// LastError returns the error recorded by the last failed operation.
func (g *Grabber) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// GrabbedAudioDataSize returns the number of bytes captured in this session.
func (g *Grabber) GrabbedAudioDataSize() int64 {
	return g.grabbed.Load()
}

// ElapsedMilliseconds returns the session time measured by the device clock.
// It is 0 whenever the grabber is not active.
func (g *Grabber) ElapsedMilliseconds() int64 {
	if g.State() != media.StateActive {
		return 0
	}
	g.mu.Lock()
	clock := g.clock
	g.mu.Unlock()
	if clock == nil {
		return 0
	}
	return clock.now().Milliseconds()
}

// Start opens the selected device and begins capturing. It is a no-op
// unless the grabber is stopped.
func (g *Grabber) Start() error {
	g.mu.Lock()
	defer g.unlock()

	if g.State() != media.StateStopped {
		return nil
	}

	if err := g.format.Validate(); err != nil {
		g.lastErr = err
		return err
	}

	if _, err := findDevice(g.backend, Capture, g.deviceIndex); err != nil {
		g.lastErr = err
		g.logger.Warn("Capture device not found", "device_index", g.deviceIndex, "error", err)
		return err
	}

	clock := newStreamClock(g.format.SampleRate)
	bytesPerFrame := g.format.BytesPerFrame()
	onData := g.onData
	deviceIndex := g.deviceIndex

	handler := func(_, in []byte) {
		if len(in) == 0 {
			return
		}
		clock.advance(len(in) / bytesPerFrame)

		chunk := make([]byte, len(in))
		copy(chunk, in)
		g.grabbed.Add(int64(len(chunk)))
		metrics.AddCapturedBytes(deviceIndex, len(chunk))

		if onData != nil {
			onData(chunk, clock.now().Milliseconds())
		}
	}

	cfg := StreamConfig{
		Direction:    Capture,
		DeviceIndex:  g.deviceIndex,
		Format:       g.format,
		BufferFrames: g.bufferFrames,
	}
	stream, err := g.backend.Open(cfg, handler)
	if err != nil {
		g.lastErr = media.NewError(media.KindDeviceOpen, "unable to open device", err)
		g.logger.Error("Failed to open capture device", "device_index", g.deviceIndex, "error", err)
		return g.lastErr
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		g.lastErr = media.NewError(media.KindDeviceOpen, "unable to start device", err)
		g.logger.Error("Failed to start capture device", "device_index", g.deviceIndex, "error", err)
		return g.lastErr
	}

	g.stream = stream
	g.clock = clock
	g.grabbed.Store(0)
	g.lastErr = nil
	g.setStateLocked(media.StateActive)
	g.logger.Info("Audio capture started", "device_index", g.deviceIndex, "format", g.format.String())
	return nil
}

// Stop closes the device stream. It is a no-op when already stopped.
func (g *Grabber) Stop() {
	g.mu.Lock()
	defer g.unlock()

	if g.State() == media.StateStopped {
		return
	}
	if g.stream != nil {
		if err := g.stream.Close(); err != nil {
			g.logger.Warn("Failed to close capture stream", "error", err)
		}
	}
	g.stream = nil
	g.clock = nil
	g.setStateLocked(media.StateStopped)
	g.logger.Info("Audio capture stopped", "grabbed_bytes", g.grabbed.Load())
}

// Suspend pauses capture without releasing the device. Only valid when active.
func (g *Grabber) Suspend() {
	g.mu.Lock()
	defer g.unlock()

	if g.State() != media.StateActive {
		return
	}
	if err := g.stream.Stop(); err != nil {
		g.lastErr = media.NewError(media.KindDeviceOpen, "unable to pause device", err)
		g.logger.Warn("Failed to pause capture stream", "error", err)
		return
	}
	g.setStateLocked(media.StateSuspended)
}

// Resume restarts a suspended capture. Only valid when suspended.
func (g *Grabber) Resume() {
	g.mu.Lock()
	defer g.unlock()

	if g.State() != media.StateSuspended {
		return
	}
	if err := g.stream.Start(); err != nil {
		g.lastErr = media.NewError(media.KindDeviceOpen, "unable to resume device", err)
		g.logger.Warn("Failed to resume capture stream", "error", err)
		return
	}
	g.setStateLocked(media.StateActive)
}

func (g *Grabber) setStateLocked(s media.State) {
	g.state.Store(s)
	g.notify = true
	metrics.SetEndpointState(media.CapAudioInput.String(), string(s))
}

// unlock releases the mutex and reports a pending state change outside of it.
func (g *Grabber) unlock() {
	cb, notify := g.onState, g.notify
	g.notify = false
	s := g.State()
	g.mu.Unlock()
	if notify && cb != nil {
		cb(s)
	}
}
