//go:build cgo

package audio

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/oto/v2"

	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
)

// OtoBackend plays audio through a single default output. The oto player
// pulls PCM from an io.Reader on its own goroutine, which maps directly onto
// the playback DataHandler. Capture is not supported.
type OtoBackend struct {
	logger logging.Logger

	mu     sync.Mutex
	ctx    *oto.Context
	format media.AudioFormat
}

// NewOtoBackend creates an oto backend. The oto context is created lazily on
// the first Open because it is bound to one format for the whole process.
func NewOtoBackend(logger logging.Logger) *OtoBackend {
	return &OtoBackend{logger: logger}
}

// Close is a no-op; oto contexts live until the process exits.
func (b *OtoBackend) Close() error { return nil }

// Devices implements Backend.
func (b *OtoBackend) Devices(dir Direction) ([]media.Device, error) {
	if dir != Playback {
		return nil, nil
	}
	return []media.Device{{Index: 0, Name: "default", IsDefault: true}}, nil
}

// DefaultDevice implements Backend.
func (b *OtoBackend) DefaultDevice(dir Direction) (int, error) {
	if dir != Playback {
		return -1, media.NewError(media.KindDeviceNotFound, "oto backend has no capture devices", nil)
	}
	return 0, nil
}

func (b *OtoBackend) context(format media.AudioFormat) (*oto.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		if b.format != format {
			return nil, fmt.Errorf("oto context already running at %s", b.format)
		}
		return b.ctx, nil
	}

	ctx, ready, err := oto.NewContext(format.SampleRate, format.ChannelCount, format.Encoding.Width())
	if err != nil {
		return nil, err
	}
	<-ready
	b.ctx = ctx
	b.format = format
	return ctx, nil
}

// Open implements Backend.
func (b *OtoBackend) Open(cfg StreamConfig, handler DataHandler) (Stream, error) {
	if cfg.Direction != Playback {
		return nil, fmt.Errorf("oto backend does not support %s", cfg.Direction)
	}
	if cfg.DeviceIndex != 0 {
		return nil, fmt.Errorf("device index %d out of range", cfg.DeviceIndex)
	}
	if cfg.Format.Encoding != media.SignedInt16 {
		return nil, fmt.Errorf("oto backend only supports s16, got %s", cfg.Format.Encoding)
	}

	ctx, err := b.context(cfg.Format)
	if err != nil {
		return nil, err
	}

	src := &pullReader{
		handler:       handler,
		bytesPerFrame: cfg.Format.BytesPerFrame(),
	}
	player := ctx.NewPlayer(src)
	b.logger.Debug("Opened oto player", "format", cfg.Format.String())
	return &otoStream{player: player}, nil
}

// pullReader adapts the playback handler to the io.Reader oto pulls from.
type pullReader struct {
	handler       DataHandler
	bytesPerFrame int
}

func (r *pullReader) Read(p []byte) (int, error) {
	n := len(p)
	if r.bytesPerFrame > 0 && n >= r.bytesPerFrame {
		n -= n % r.bytesPerFrame
	}
	r.handler(p[:n], nil)
	return n, nil
}

type otoStream struct {
	player oto.Player
}

func (s *otoStream) Start() error {
	s.player.Play()
	return s.player.Err()
}

func (s *otoStream) Stop() error {
	s.player.Pause()
	return nil
}

func (s *otoStream) Close() error {
	return s.player.Close()
}
