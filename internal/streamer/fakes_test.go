package streamer

import (
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/smazurov/avsync/internal/audio"
	"github.com/smazurov/avsync/internal/encoder"
	"github.com/smazurov/avsync/internal/media"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// endpoint is the state machine shared by the fake inputs.
type endpoint struct {
	mu       sync.Mutex
	state    media.State
	startErr error
	calls    map[string]int
	onState  func(media.State)
	index    int
}

func newEndpoint() endpoint {
	return endpoint{state: media.StateStopped, calls: make(map[string]int)}
}

func (e *endpoint) transition(call string, from, to media.State) {
	e.mu.Lock()
	if e.state != from {
		e.mu.Unlock()
		return
	}
	e.calls[call]++
	e.state = to
	cb := e.onState
	e.mu.Unlock()
	if cb != nil {
		cb(to)
	}
}

func (e *endpoint) Start() error {
	e.mu.Lock()
	if e.state != media.StateStopped {
		e.mu.Unlock()
		return nil
	}
	if e.startErr != nil {
		e.mu.Unlock()
		return e.startErr
	}
	e.mu.Unlock()
	e.transition("start", media.StateStopped, media.StateActive)
	return nil
}

func (e *endpoint) Stop() {
	e.mu.Lock()
	from := e.state
	e.mu.Unlock()
	if from != media.StateStopped {
		e.transition("stop", from, media.StateStopped)
	}
}

func (e *endpoint) Suspend() { e.transition("suspend", media.StateActive, media.StateSuspended) }
func (e *endpoint) Resume()  { e.transition("resume", media.StateSuspended, media.StateActive) }

func (e *endpoint) State() media.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *endpoint) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startErr
}

func (e *endpoint) count(call string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[call]
}

func (e *endpoint) SetStateHandler(h func(media.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = h
}

func (e *endpoint) SetDeviceIndex(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.index = i
}

func (e *endpoint) DeviceIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

func (e *endpoint) AvailableDevices() ([]media.Device, error) {
	return []media.Device{{Index: 0, Name: "fake", IsDefault: true}}, nil
}

type fakeAudio struct {
	endpoint
	format media.AudioFormat
	onData audio.DataAvailableHandler
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{
		endpoint: newEndpoint(),
		format:   media.AudioFormat{SampleRate: 44100, ChannelCount: 2, Encoding: media.SignedInt16},
	}
}

func (a *fakeAudio) Capability() media.Capability                { return media.CapAudioInput }
func (a *fakeAudio) Format() media.AudioFormat                   { return a.format }
func (a *fakeAudio) SetDataHandler(h audio.DataAvailableHandler) { a.onData = h }
func (a *fakeAudio) ElapsedMilliseconds() int64                  { return 0 }
func (a *fakeAudio) GrabbedAudioDataSize() int64                 { return 0 }
func (a *fakeAudio) deliver(data []byte)                         { a.onData(data, 0) }

type fakeVideo struct {
	endpoint
	size    image.Point
	onFrame media.FrameHandler
}

func newFakeVideo() *fakeVideo {
	return &fakeVideo{endpoint: newEndpoint(), size: image.Pt(4, 2)}
}

func (v *fakeVideo) Capability() media.Capability              { return media.CapVideoInput }
func (v *fakeVideo) SetFrameHandler(h media.FrameHandler)      { v.onFrame = h }
func (v *fakeVideo) FrameSize() image.Point                    { return v.size }
func (v *fakeVideo) MaximumFrameSize(int) (image.Point, error) { return v.size, nil }
func (v *fakeVideo) deliver(img image.Image)                   { v.onFrame(media.Frame{Image: img}) }

type fakeEncoder struct {
	mu      sync.Mutex
	open    bool
	openErr error
	params  encoder.Params
	audio   [][]byte
	frames  int
	closes  int
	onExit  func(error)
}

func (e *fakeEncoder) Open(p encoder.Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return e.openErr
	}
	e.open = true
	e.params = p
	return nil
}

func (e *fakeEncoder) EncodeAudio(pcm []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return encoder.ErrNotRunning
	}
	e.audio = append(e.audio, append([]byte(nil), pcm...))
	return nil
}

func (e *fakeEncoder) EncodeVideo(image.Image) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return encoder.ErrNotRunning
	}
	e.frames++
	return nil
}

func (e *fakeEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open {
		e.closes++
	}
	e.open = false
	return nil
}

func (e *fakeEncoder) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

func (e *fakeEncoder) SetExitHandler(h func(error)) { e.onExit = h }

func (e *fakeEncoder) chunks() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.audio...)
}
