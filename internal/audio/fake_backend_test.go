package audio

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/smazurov/avsync/internal/media"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStream struct {
	mu      sync.Mutex
	cfg     StreamConfig
	handler DataHandler
	starts  int
	stops   int
	closed  bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// deliver simulates the device thread invoking the capture callback.
func (s *fakeStream) deliver(in []byte) {
	s.handler(nil, in)
}

// pull simulates the device thread asking for n playback bytes.
func (s *fakeStream) pull(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xAA
	}
	s.handler(out, nil)
	return out
}

type fakeBackend struct {
	mu      sync.Mutex
	devices map[Direction][]media.Device
	openErr error
	streams []*fakeStream
	opens   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		devices: map[Direction][]media.Device{
			Capture: {
				{Index: 0, Name: "Built-in Microphone", IsDefault: true},
				{Index: 1, Name: "USB Audio"},
			},
			Playback: {
				{Index: 0, Name: "Speakers", IsDefault: true},
			},
		},
	}
}

func (b *fakeBackend) Devices(dir Direction) ([]media.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]media.Device(nil), b.devices[dir]...), nil
}

func (b *fakeBackend) DefaultDevice(dir Direction) (int, error) {
	devices, _ := b.Devices(dir)
	for _, d := range devices {
		if d.IsDefault {
			return d.Index, nil
		}
	}
	return -1, errors.New("no default device")
}

func (b *fakeBackend) Open(cfg StreamConfig, handler DataHandler) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeStream{cfg: cfg, handler: handler}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) lastStream() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}
