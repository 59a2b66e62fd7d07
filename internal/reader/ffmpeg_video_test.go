package reader

import (
	"image"
	"image/color"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/process"
)

// echoDecoder emits one solid RGB24 frame for every write on stdin.
type echoDecoder struct {
	inR  *io.PipeReader
	inW  *io.PipeWriter
	outR *io.PipeReader
	outW *io.PipeWriter
	once sync.Once
}

func newEchoDecoder(size image.Point, fill byte) *echoDecoder {
	p := &echoDecoder{}
	p.inR, p.inW = io.Pipe()
	p.outR, p.outW = io.Pipe()
	go func() {
		buf := make([]byte, 4096)
		frame := make([]byte, size.X*size.Y*3)
		for i := range frame {
			frame[i] = fill
		}
		for {
			if _, err := p.inR.Read(buf); err != nil {
				return
			}
			if _, err := p.outW.Write(frame); err != nil {
				return
			}
		}
	}()
	return p
}

func (p *echoDecoder) Stdin() io.Writer  { return p.inW }
func (p *echoDecoder) Stdout() io.Reader { return p.outR }

func (p *echoDecoder) Stop() int {
	p.once.Do(func() {
		p.inW.Close()
		p.inR.Close()
		p.outW.Close()
	})
	return 0
}

func newTestVideoDecoder(t *testing.T, proc *echoDecoder, size image.Point) (*FFmpegVideoDecoder, *process.Config) {
	t.Helper()
	var cfg process.Config
	d, err := newFFmpegVideoDecoder("ffmpeg", nil, videoStream, size, discardLogger(),
		func(c process.Config, _ logging.Logger) (decoderProcess, error) {
			cfg = c
			return proc, nil
		})
	if err != nil {
		t.Fatalf("newFFmpegVideoDecoder() error = %v", err)
	}
	return d, &cfg
}

func (d *FFmpegVideoDecoder) waitReady(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		ready := len(d.ready)
		d.mu.Unlock()
		if ready >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d decoded frames", n)
}

func TestFFmpegVideoDecoder(t *testing.T) {
	size := image.Pt(4, 2)
	proc := newEchoDecoder(size, 0x40)
	d, cfg := newTestVideoDecoder(t, proc, size)
	defer d.Close()

	if !cfg.Stdin || !cfg.Stdout || cfg.Name != "decoder" {
		t.Errorf("process config = %+v, want stdin and stdout pipes", cfg)
	}
	if !slices.Contains(cfg.Args, "scale=4:2") {
		t.Errorf("args %v should scale to 4x2", cfg.Args)
	}

	if _, err := d.Decode(Packet{PTS: 10 * time.Millisecond, Payload: []byte{0, 0, 0, 1, 0x65}}); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	d.waitReady(t, 1)

	frames, err := d.Decode(Packet{PTS: 20 * time.Millisecond, Payload: []byte{0, 0, 0, 1, 0x41}})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(frames) == 0 {
		t.Fatal("Decode() returned no frames after one was ready")
	}
	if frames[0].PTS != 10*time.Millisecond {
		t.Errorf("frame PTS = %v, want 10ms", frames[0].PTS)
	}
	if got := frames[0].Image.Bounds().Size(); got != size {
		t.Errorf("frame size = %v, want %v", got, size)
	}
	want := color.RGBA{0x40, 0x40, 0x40, 0xFF}
	if got := frames[0].Image.At(3, 1); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
}

func TestFFmpegVideoDecoderRejectsCodec(t *testing.T) {
	_, err := newFFmpegVideoDecoder("ffmpeg", nil, StreamInfo{Codec: "H265"}, image.Pt(4, 2), discardLogger(),
		func(process.Config, logging.Logger) (decoderProcess, error) {
			t.Fatal("process started for an unsupported codec")
			return nil, nil
		})
	if err == nil {
		t.Error("newFFmpegVideoDecoder() should reject H265")
	}
}

func TestFFmpegVideoDecoderWriteAfterClose(t *testing.T) {
	size := image.Pt(2, 2)
	d, _ := newTestVideoDecoder(t, newEchoDecoder(size, 0), size)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := d.Decode(Packet{Payload: []byte{1}}); err == nil {
		t.Error("Decode() after Close should fail")
	}
}
