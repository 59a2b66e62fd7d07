package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/metrics"
)

// Playback defaults.
const (
	DefaultPlaybackBufferFrames = 1024
	DefaultMaxBuffered          = 2 * time.Second
)

// Player stages PCM written by a producer until the playback device pulls it.
// The device callback reads through ReadData; when it returns nil the
// callback plays silence so the output stays continuous.
type Player struct {
	backend Backend
	logger  logging.Logger

	mu           sync.Mutex // lifecycle and configuration
	deviceIndex  int
	format       media.AudioFormat
	bufferFrames int
	maxBuffered  time.Duration
	stream       Stream
	lastErr      error
	onState      func(media.State)
	notify       bool

	bufMu sync.Mutex // guards buf only
	buf   *stagedBuffer

	clock     atomic.Pointer[streamClock]
	state     atomic.Value // media.State
	written   atomic.Int64
	underruns atomic.Int64
	dropped   atomic.Int64
}

// NewPlayer creates a player for the given backend.
func NewPlayer(backend Backend, logger logging.Logger) *Player {
	p := &Player{
		backend:      backend,
		logger:       logger,
		deviceIndex:  -1,
		bufferFrames: DefaultPlaybackBufferFrames,
		maxBuffered:  DefaultMaxBuffered,
	}
	p.state.Store(media.StateStopped)
	return p
}

// Capability implements media.Endpoint.
func (p *Player) Capability() media.Capability { return media.CapAudioOutput }

// SetDeviceIndex selects the output device.
func (p *Player) SetDeviceIndex(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceIndex = index
}

// DeviceIndex returns the selected output device index.
func (p *Player) DeviceIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceIndex
}

// SetFormat sets the playback format. It takes effect on the next Start.
func (p *Player) SetFormat(format media.AudioFormat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.format = format
}

// Format returns the playback format.
func (p *Player) Format() media.AudioFormat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

// SetBufferFrames sets the device period in frames.
func (p *Player) SetBufferFrames(frames int) {
	if frames <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bufferFrames = frames
}

// SetMaxBuffered bounds how much audio may be staged. Zero disables the bound.
func (p *Player) SetMaxBuffered(d time.Duration) {
	if d < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxBuffered = d
}

// SetStateHandler registers a callback for state transitions.
func (p *Player) SetStateHandler(h func(media.State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = h
}

// AvailableDevices lists devices that offer output channels.
func (p *Player) AvailableDevices() ([]media.Device, error) {
	return p.backend.Devices(Playback)
}

// DefaultDeviceIndex returns the OS default output device.
func (p *Player) DefaultDeviceIndex() (int, error) {
	return p.backend.DefaultDevice(Playback)
}

// State implements media.Endpoint.
func (p *Player) State() media.State {
	return p.state.Load().(media.State)
}

// LastError returns the error recorded by the last failed operation.
func (p *Player) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// WriteData appends a decoded chunk whose first frame presents at pts.
// Writes are ignored unless the player is active. When the staged audio
// would exceed the configured bound the oldest frames are dropped.
func (p *Player) WriteData(pts time.Duration, chunk []byte) {
	if p.State() != media.StateActive || len(chunk) == 0 {
		return
	}

	p.bufMu.Lock()
	if p.buf == nil {
		p.bufMu.Unlock()
		return
	}
	dropped := p.buf.write(pts, chunk)
	staged := p.buf.len()
	p.bufMu.Unlock()

	p.written.Add(int64(len(chunk)))
	metrics.SetStagedBytes(staged)
	if dropped > 0 {
		p.dropped.Add(int64(dropped))
		metrics.AddStagedBytesDropped(dropped)
	}
}

// ReadData removes exactly n bytes from the head of the staged buffer. It
// returns nil, meaning silence, unless the player is active and at least n
// bytes are staged.
func (p *Player) ReadData(n int) []byte {
	if n <= 0 {
		return nil
	}

	p.bufMu.Lock()
	defer p.bufMu.Unlock()

	if p.buf == nil || p.buf.len() < n || p.State() != media.StateActive {
		return nil
	}
	return p.buf.read(n)
}

// Ahead returns how far the presentation time of the next staged byte leads
// the stream clock. It is negative when the staged audio is behind and 0
// when nothing is staged.
func (p *Player) Ahead() time.Duration {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	if p.buf == nil {
		return 0
	}
	head, ok := p.buf.headPTS()
	if !ok {
		return 0
	}
	return head - p.StreamTime()
}

// ReadAll drains the staged buffer.
func (p *Player) ReadAll() []byte {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	if p.buf == nil {
		return nil
	}
	return p.buf.readAll()
}

// Buffered returns the number of staged bytes.
func (p *Player) Buffered() int {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	if p.buf == nil {
		return 0
	}
	return p.buf.len()
}

// DroppedBytes returns how many staged bytes were discarded by the bound.
func (p *Player) DroppedBytes() int64 {
	return p.dropped.Load()
}

// Underruns returns how many device pulls were answered with silence.
func (p *Player) Underruns() int64 {
	return p.underruns.Load()
}

// GrabbedAudioDataSize returns the number of bytes written in this session.
func (p *Player) GrabbedAudioDataSize() int64 {
	return p.written.Load()
}

// SetStreamTime aligns the player clock to the source presentation clock.
func (p *Player) SetStreamTime(t time.Duration) {
	if c := p.clock.Load(); c != nil {
		c.set(t)
	}
}

// StreamTime returns the player clock, or 0 when no stream is open.
func (p *Player) StreamTime() time.Duration {
	if c := p.clock.Load(); c != nil {
		return c.now()
	}
	return 0
}

// ElapsedMilliseconds returns the stream time in milliseconds while active.
func (p *Player) ElapsedMilliseconds() int64 {
	if p.State() != media.StateActive {
		return 0
	}
	return p.StreamTime().Milliseconds()
}

// pull is the playback callback. It never blocks on anything but bufMu.
func (p *Player) pull(out, _ []byte) {
	if len(out) == 0 {
		return
	}
	if c := p.clock.Load(); c != nil {
		if bpf := c.bytesPerFrame; bpf > 0 {
			defer c.advance(len(out) / bpf)
		}
	}

	data := p.ReadData(len(out))
	if data == nil {
		clear(out)
		if p.State() == media.StateActive {
			p.underruns.Add(1)
			metrics.IncPlaybackUnderruns()
		}
		return
	}
	copy(out, data)
}

// Start opens the selected output device. It is a no-op unless stopped.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.unlock()

	if p.State() != media.StateStopped {
		return nil
	}

	if err := p.format.Validate(); err != nil {
		p.lastErr = err
		return err
	}

	if _, err := findDevice(p.backend, Playback, p.deviceIndex); err != nil {
		p.lastErr = err
		p.logger.Warn("Playback device not found", "device_index", p.deviceIndex, "error", err)
		return err
	}

	clock := newStreamClock(p.format.SampleRate)
	clock.bytesPerFrame = p.format.BytesPerFrame()
	p.clock.Store(clock)

	p.bufMu.Lock()
	p.buf = newStagedBuffer(p.format, p.format.BytesFor(p.maxBuffered))
	p.bufMu.Unlock()

	cfg := StreamConfig{
		Direction:    Playback,
		DeviceIndex:  p.deviceIndex,
		Format:       p.format,
		BufferFrames: p.bufferFrames,
	}
	stream, err := p.backend.Open(cfg, p.pull)
	if err != nil {
		p.resetLocked()
		p.lastErr = media.NewError(media.KindDeviceOpen, "unable to open device", err)
		p.logger.Error("Failed to open playback device", "device_index", p.deviceIndex, "error", err)
		return p.lastErr
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		p.resetLocked()
		p.lastErr = media.NewError(media.KindDeviceOpen, "unable to start device", err)
		p.logger.Error("Failed to start playback device", "device_index", p.deviceIndex, "error", err)
		return p.lastErr
	}

	p.stream = stream
	p.written.Store(0)
	p.lastErr = nil
	p.setStateLocked(media.StateActive)
	p.logger.Info("Audio playback started", "device_index", p.deviceIndex, "format", p.format.String())
	return nil
}

// Stop closes the device stream and clears staged audio.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.unlock()

	if p.State() == media.StateStopped {
		return
	}
	// Flip state first so a callback racing with Close plays silence.
	p.setStateLocked(media.StateStopped)
	if p.stream != nil {
		if err := p.stream.Close(); err != nil {
			p.logger.Warn("Failed to close playback stream", "error", err)
		}
	}
	p.stream = nil
	p.resetLocked()
	metrics.SetStagedBytes(0)
	p.logger.Info("Audio playback stopped", "underruns", p.underruns.Load(), "dropped_bytes", p.dropped.Load())
}

// Suspend pauses playback without releasing the device.
func (p *Player) Suspend() {
	p.mu.Lock()
	defer p.unlock()

	if p.State() != media.StateActive {
		return
	}
	if err := p.stream.Stop(); err != nil {
		p.lastErr = media.NewError(media.KindDeviceOpen, "unable to pause device", err)
		p.logger.Warn("Failed to pause playback stream", "error", err)
		return
	}
	p.setStateLocked(media.StateSuspended)
}

// Resume restarts a suspended playback.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.unlock()

	if p.State() != media.StateSuspended {
		return
	}
	if err := p.stream.Start(); err != nil {
		p.lastErr = media.NewError(media.KindDeviceOpen, "unable to resume device", err)
		p.logger.Warn("Failed to resume playback stream", "error", err)
		return
	}
	p.setStateLocked(media.StateActive)
}

func (p *Player) resetLocked() {
	p.bufMu.Lock()
	p.buf = nil
	p.bufMu.Unlock()
	p.clock.Store(nil)
}

func (p *Player) setStateLocked(s media.State) {
	p.state.Store(s)
	p.notify = true
	metrics.SetEndpointState(media.CapAudioOutput.String(), string(s))
}

func (p *Player) unlock() {
	cb, notify := p.onState, p.notify
	p.notify = false
	s := p.State()
	p.mu.Unlock()
	if notify && cb != nil {
		cb(s)
	}
}
