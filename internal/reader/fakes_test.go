package reader

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/avsync/internal/media"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDemuxer struct {
	mu      sync.Mutex
	openErr error
	streams []StreamInfo
	packets []Packet
	block   bool // wait for cancellation instead of returning io.EOF
	readErr error
	closed  bool
}

func (d *fakeDemuxer) Open(ctx context.Context, url string) error { return d.openErr }
func (d *fakeDemuxer) Streams() []StreamInfo                      { return d.streams }

func (d *fakeDemuxer) ReadPacket(ctx context.Context) (Packet, error) {
	d.mu.Lock()
	if len(d.packets) > 0 {
		pkt := d.packets[0]
		d.packets = d.packets[1:]
		d.mu.Unlock()
		return pkt, nil
	}
	d.mu.Unlock()

	if d.readErr != nil {
		return Packet{}, d.readErr
	}
	if d.block {
		<-ctx.Done()
		return Packet{}, ctx.Err()
	}
	return Packet{}, io.EOF
}

func (d *fakeDemuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDemuxer) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// passAudio returns the payload unchanged as PCM.
type passAudio struct{ closed bool }

func (a *passAudio) Format() media.AudioFormat {
	return media.AudioFormat{SampleRate: 8000, ChannelCount: 1, Encoding: media.SignedInt16}
}
func (a *passAudio) Decode(pkt Packet) ([]byte, error) { return pkt.Payload, nil }
func (a *passAudio) Close() error                      { a.closed = true; return nil }

// oneFrameVideo returns one 2x2 frame per packet.
type oneFrameVideo struct{ closed bool }

func (v *oneFrameVideo) Decode(pkt Packet) ([]media.Frame, error) {
	return []media.Frame{{Image: image.NewRGBA(image.Rect(0, 0, 2, 2)), PTS: pkt.PTS}}, nil
}
func (v *oneFrameVideo) Close() error { v.closed = true; return nil }

type write struct {
	pts  time.Duration
	size int
}

type fakePlayer struct {
	mu         sync.Mutex
	state      media.State
	startErr   error
	format     media.AudioFormat
	writes     []write
	streamTime []time.Duration
	calls      map[string]int
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{state: media.StateStopped, calls: make(map[string]int)}
}

func (p *fakePlayer) count(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[call]++
}

func (p *fakePlayer) Capability() media.Capability { return media.CapAudioOutput }

func (p *fakePlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["start"]++
	if p.startErr != nil {
		return p.startErr
	}
	p.state = media.StateActive
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["stop"]++
	p.state = media.StateStopped
}

func (p *fakePlayer) Suspend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == media.StateActive {
		p.state = media.StateSuspended
	}
}

func (p *fakePlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == media.StateSuspended {
		p.state = media.StateActive
	}
}

func (p *fakePlayer) State() media.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) LastError() error { return nil }

func (p *fakePlayer) SetFormat(f media.AudioFormat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["format"]++
	p.format = f
}

func (p *fakePlayer) WriteData(pts time.Duration, chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, write{pts, len(chunk)})
}

func (p *fakePlayer) SetStreamTime(t time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamTime = append(p.streamTime, t)
}

func (p *fakePlayer) StreamTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.streamTime); n > 0 {
		return p.streamTime[n-1]
	}
	return 0
}

func (p *fakePlayer) ElapsedMilliseconds() int64 { return p.StreamTime().Milliseconds() }

func (p *fakePlayer) Ahead() time.Duration { return 0 }

func (p *fakePlayer) snapshot() (writes []write, times []time.Duration, calls map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls = make(map[string]int, len(p.calls))
	for k, v := range p.calls {
		calls[k] = v
	}
	return append([]write(nil), p.writes...), append([]time.Duration(nil), p.streamTime...), calls
}

var errBoom = errors.New("boom")
