package streamer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/media"
)

type harness struct {
	s     *Streamer
	audio *fakeAudio
	video *fakeVideo
	enc   *fakeEncoder
	bus   *events.Bus
	now   time.Time
}

func newHarness(window time.Duration) *harness {
	h := &harness{
		audio: newFakeAudio(),
		video: newFakeVideo(),
		enc:   &fakeEncoder{},
		bus:   events.New(),
		now:   time.Unix(1000, 0),
	}
	h.s = New(Config{MuteWindow: window, FrameRate: 25}, h.audio, h.video, h.enc, h.bus, discardLogger())
	h.s.now = func() time.Time { return h.now }
	return h
}

func TestStartActivatesEverything(t *testing.T) {
	h := newHarness(time.Second)
	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.s.Stop()

	if h.s.State() != media.StateActive {
		t.Errorf("State() = %v, want active", h.s.State())
	}
	if h.audio.State() != media.StateActive || h.video.State() != media.StateActive {
		t.Errorf("endpoints = %v/%v, want both active", h.audio.State(), h.video.State())
	}
	p := h.enc.params
	if p.URL != "rtmp://host/live" || p.Audio != h.audio.format || p.VideoSize != image.Pt(4, 2) || p.FrameRate != 25 {
		t.Errorf("encoder params = %+v", p)
	}

	// Already active.
	if err := h.s.Start(context.Background(), "rtmp://other"); err != nil {
		t.Errorf("second Start() = %v, want nil", err)
	}
	if h.audio.count("start") != 1 {
		t.Errorf("audio started %d times, want 1", h.audio.count("start"))
	}
}

func TestStartRollsBack(t *testing.T) {
	deviceErr := media.NewError(media.KindDeviceNotFound, "no device 3", nil)

	tests := []struct {
		name       string
		setup      func(h *harness)
		wantErr    error
		audioStart int
	}{
		{
			name:    "camera fails",
			setup:   func(h *harness) { h.video.startErr = media.NewError(media.KindDeviceOpen, "busy", nil) },
			wantErr: media.ErrDeviceOpen,
		},
		{
			name:    "microphone fails",
			setup:   func(h *harness) { h.audio.startErr = deviceErr },
			wantErr: media.ErrDeviceNotFound,
		},
		{
			name:       "encoder fails",
			setup:      func(h *harness) { h.enc.openErr = media.NewError(media.KindEncoderOpen, "bad url", nil) },
			wantErr:    media.ErrEncoderOpen,
			audioStart: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(0)
			tt.setup(h)

			errs := make(chan events.SenderErrorEvent, 1)
			unsub := h.bus.Subscribe(func(e events.SenderErrorEvent) { errs <- e })
			defer unsub()

			err := h.s.Start(context.Background(), "rtmp://host/live")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start() error = %v, want %v", err, tt.wantErr)
			}
			if h.s.State() != media.StateStopped {
				t.Errorf("State() = %v, want stopped", h.s.State())
			}
			if h.audio.State() != media.StateStopped || h.video.State() != media.StateStopped {
				t.Errorf("endpoints = %v/%v, want both stopped", h.audio.State(), h.video.State())
			}
			if got := h.audio.count("start"); got != tt.audioStart {
				t.Errorf("audio starts = %d, want %d", got, tt.audioStart)
			}
			if !errors.Is(h.s.LastError(), tt.wantErr) {
				t.Errorf("LastError() = %v", h.s.LastError())
			}

			select {
			case e := <-errs:
				var me *media.Error
				errors.As(err, &me)
				if e.Kind != string(me.Kind) {
					t.Errorf("error event kind = %q, want %q", e.Kind, me.Kind)
				}
			case <-time.After(time.Second):
				t.Error("no error event published")
			}
		})
	}
}

func TestStartWithoutURL(t *testing.T) {
	h := newHarness(0)
	if err := h.s.Start(context.Background(), ""); err == nil {
		t.Fatal("Start(\"\") should fail")
	}
	if h.video.count("start") != 0 {
		t.Error("camera started without a URL")
	}
}

func TestStartupMuteWindow(t *testing.T) {
	h := newHarness(time.Second)
	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	defer h.s.Stop()

	if !h.s.IsMuted() {
		t.Error("IsMuted() = false inside the startup window")
	}
	h.audio.deliver([]byte{1, 2, 3, 4})

	h.now = h.now.Add(999 * time.Millisecond)
	h.audio.deliver([]byte{5, 6, 7, 8})

	h.now = h.now.Add(time.Millisecond)
	if h.s.IsMuted() {
		t.Error("IsMuted() = true after the startup window")
	}
	h.audio.deliver([]byte{9, 10, 11, 12})

	got := h.enc.chunks()
	want := [][]byte{{0, 0, 0, 0}, {0, 0, 0, 0}, {9, 10, 11, 12}}
	if len(got) != len(want) {
		t.Fatalf("encoded %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("chunk %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMuteOverridesWindow(t *testing.T) {
	h := newHarness(time.Second)
	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	defer h.s.Stop()

	h.s.Mute()
	h.now = h.now.Add(2 * time.Second)
	if !h.s.IsMuted() {
		t.Error("explicit Mute() should outlast the startup window")
	}
	h.audio.deliver([]byte{1, 1})

	h.s.Unmute()
	h.audio.deliver([]byte{2, 2})

	got := h.enc.chunks()
	if len(got) != 2 || !bytes.Equal(got[0], []byte{0, 0}) || !bytes.Equal(got[1], []byte{2, 2}) {
		t.Errorf("encoded chunks = %v, want silence then data", got)
	}
}

func TestUnmuteKeepsStartupWindow(t *testing.T) {
	h := newHarness(time.Second)
	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	defer h.s.Stop()

	h.s.Unmute()
	if !h.s.IsMuted() {
		t.Error("Unmute() should not end the startup window")
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(0)

	// Not started: both are no-ops.
	h.s.Pause()
	h.s.Resume()
	if h.audio.count("suspend")+h.audio.count("resume") != 0 {
		t.Error("Pause/Resume on a stopped streamer reached the devices")
	}

	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	defer h.s.Stop()

	h.s.Resume() // active: no-op
	h.s.Pause()
	h.s.Pause() // suspended: no-op
	if h.s.State() != media.StateSuspended {
		t.Errorf("State() = %v, want suspended", h.s.State())
	}
	if h.audio.count("suspend") != 1 || h.video.count("suspend") != 1 {
		t.Errorf("suspends = %d/%d, want 1/1", h.audio.count("suspend"), h.video.count("suspend"))
	}

	h.audio.deliver([]byte{1, 2})
	if n := len(h.enc.chunks()); n != 0 {
		t.Errorf("encoded %d chunks while paused, want 0", n)
	}

	h.s.Resume()
	if h.s.State() != media.StateActive {
		t.Errorf("State() = %v, want active", h.s.State())
	}
	if h.audio.count("resume") != 1 || h.video.count("resume") != 1 {
		t.Errorf("resumes = %d/%d, want 1/1", h.audio.count("resume"), h.video.count("resume"))
	}
}

func TestStopReleasesEverything(t *testing.T) {
	h := newHarness(0)
	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	h.s.Stop()
	h.s.Stop()

	if h.s.State() != media.StateStopped {
		t.Errorf("State() = %v, want stopped", h.s.State())
	}
	if h.audio.count("stop") != 1 || h.video.count("stop") != 1 || h.enc.closes != 1 {
		t.Errorf("stops = %d/%d, encoder closes = %d, want 1/1/1", h.audio.count("stop"), h.video.count("stop"), h.enc.closes)
	}

	// A restart after stop is permitted.
	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Errorf("restart error = %v", err)
	}
	h.s.Stop()
}

func TestFramesReachEncoder(t *testing.T) {
	h := newHarness(0)
	var preview int
	h.s.SetFrameHandler(func(media.Frame) { preview++ })

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	h.video.deliver(img) // stopped: dropped

	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	h.video.deliver(img)
	h.video.deliver(img)
	h.s.Stop()

	if h.enc.frames != 2 || preview != 2 {
		t.Errorf("frames encoded = %d, previewed = %d, want 2/2", h.enc.frames, preview)
	}
}

func TestContextCancelStops(t *testing.T) {
	h := newHarness(0)
	ctx, cancel := context.WithCancel(context.Background())
	if err := h.s.Start(ctx, "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for h.s.State() != media.StateStopped {
		if time.Now().After(deadline) {
			t.Fatal("streamer still running after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEncoderExitStops(t *testing.T) {
	h := newHarness(0)
	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	h.enc.onExit(errors.New("exit status 1"))

	if h.s.State() != media.StateStopped {
		t.Errorf("State() = %v, want stopped", h.s.State())
	}
	if !errors.Is(h.s.LastError(), media.ErrEncoderOpen) {
		t.Errorf("LastError() = %v, want encoder error", h.s.LastError())
	}
}

func TestEndpointStateEvents(t *testing.T) {
	h := newHarness(0)
	got := make(chan events.EndpointStateChangedEvent, 8)
	unsub := h.bus.Subscribe(func(e events.EndpointStateChangedEvent) { got <- e })
	defer unsub()

	if err := h.s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	defer h.s.Stop()

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case e := <-got:
			if e.State == string(media.StateActive) {
				seen[e.Capability] = true
			}
		case <-time.After(time.Second):
			t.Fatalf("active events seen for %v, want audio_input and video_input", seen)
		}
	}
}
