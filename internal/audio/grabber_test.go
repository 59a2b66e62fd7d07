package audio

import (
	"errors"
	"sync"
	"testing"

	"github.com/smazurov/avsync/internal/media"
)

var stereoCD = media.AudioFormat{SampleRate: 44100, ChannelCount: 2, Encoding: media.SignedInt16}

func TestGrabberStartOnFirstDevice(t *testing.T) {
	backend := newFakeBackend()
	g := NewGrabber(backend, discardLogger)

	indices, err := g.DeviceIndexList()
	if err != nil || len(indices) == 0 {
		t.Fatalf("DeviceIndexList() = %v, %v", indices, err)
	}
	g.SetDeviceIndex(indices[0])
	g.SetFormat(stereoCD)

	var mu sync.Mutex
	var chunks [][]byte
	var elapsed []int64
	g.SetDataHandler(func(data []byte, ms int64) {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, data)
		elapsed = append(elapsed, ms)
	})

	if err := g.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if g.State() != media.StateActive {
		t.Fatalf("State() = %v, want %v", g.State(), media.StateActive)
	}

	stream := backend.lastStream()
	// 4410 frames of 4 bytes is 100ms at 44.1kHz.
	hw := make([]byte, 4410*4)
	for i := 0; i < 3; i++ {
		hw[0] = byte(i)
		stream.deliver(hw)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c[0] != byte(i) {
			t.Errorf("chunk %d was not copied before the hardware buffer changed", i)
		}
	}
	want := []int64{100, 200, 300}
	for i := range want {
		if elapsed[i] != want[i] {
			t.Errorf("elapsed[%d] = %d, want %d", i, elapsed[i], want[i])
		}
	}
	if got := g.ElapsedMilliseconds(); got != 300 {
		t.Errorf("ElapsedMilliseconds() = %d, want 300", got)
	}
	if got := g.GrabbedAudioDataSize(); got != int64(3*len(hw)) {
		t.Errorf("GrabbedAudioDataSize() = %d, want %d", got, 3*len(hw))
	}

	g.Stop()
	if g.ElapsedMilliseconds() != 0 {
		t.Error("ElapsedMilliseconds() should be 0 after Stop")
	}
	if !stream.closed {
		t.Error("Stop did not close the native stream")
	}
}

func TestGrabberStartFailures(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		format  media.AudioFormat
		openErr error
		want    error
		opens   int
	}{
		{"invalid format", 0, media.AudioFormat{SampleRate: 0, ChannelCount: 2, Encoding: media.SignedInt16}, nil, media.ErrInvalidFormat, 0},
		{"unknown encoding", 0, media.AudioFormat{SampleRate: 44100, ChannelCount: 2}, nil, media.ErrInvalidFormat, 0},
		{"unset device", -1, stereoCD, nil, media.ErrDeviceNotFound, 0},
		{"missing device", 7, stereoCD, nil, media.ErrDeviceNotFound, 0},
		{"open failure", 1, stereoCD, errors.New("device busy"), media.ErrDeviceOpen, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.openErr = tt.openErr
			g := NewGrabber(backend, discardLogger)
			g.SetDeviceIndex(tt.index)
			g.SetFormat(tt.format)

			err := g.Start()
			if !errors.Is(err, tt.want) {
				t.Errorf("Start() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(g.LastError(), tt.want) {
				t.Errorf("LastError() = %v, want %v", g.LastError(), tt.want)
			}
			if g.State() != media.StateStopped {
				t.Errorf("State() = %v, want stopped", g.State())
			}
			if backend.openCount() != tt.opens {
				t.Errorf("Open calls = %d, want %d", backend.openCount(), tt.opens)
			}
		})
	}
}

func TestGrabberSuspendResumeIdempotent(t *testing.T) {
	backend := newFakeBackend()
	g := NewGrabber(backend, discardLogger)
	g.SetDeviceIndex(0)
	g.SetFormat(stereoCD)

	// Not valid before Start.
	g.Suspend()
	g.Resume()
	if g.State() != media.StateStopped {
		t.Fatalf("State() = %v, want stopped", g.State())
	}

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	stream := backend.lastStream()

	g.Suspend()
	g.Suspend()
	if g.State() != media.StateSuspended {
		t.Errorf("State() = %v, want suspended", g.State())
	}
	if stream.stops != 1 {
		t.Errorf("native stops = %d, want 1", stream.stops)
	}
	if g.ElapsedMilliseconds() != 0 {
		t.Error("ElapsedMilliseconds() should be 0 while suspended")
	}

	g.Resume()
	g.Resume()
	if g.State() != media.StateActive {
		t.Errorf("State() = %v, want active", g.State())
	}
	if stream.starts != 2 {
		t.Errorf("native starts = %d, want 2", stream.starts)
	}

	// Start while active does not reopen.
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	if backend.openCount() != 1 {
		t.Errorf("Open calls = %d, want 1", backend.openCount())
	}
}

func TestGrabberStateHandlerRunsUnlocked(t *testing.T) {
	backend := newFakeBackend()
	g := NewGrabber(backend, discardLogger)
	g.SetDeviceIndex(0)
	g.SetFormat(stereoCD)

	var states []media.State
	g.SetStateHandler(func(s media.State) {
		// Would deadlock if invoked under the grabber mutex.
		_ = g.DeviceIndex()
		states = append(states, s)
	})

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	g.Suspend()
	g.Resume()
	g.Stop()

	want := []media.State{media.StateActive, media.StateSuspended, media.StateActive, media.StateStopped}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestGrabberDeviceLookup(t *testing.T) {
	g := NewGrabber(newFakeBackend(), discardLogger)

	if got := g.DeviceName(1); got != "USB Audio" {
		t.Errorf("DeviceName(1) = %q, want %q", got, "USB Audio")
	}
	if got := g.DeviceName(9); got != "" {
		t.Errorf("DeviceName(9) = %q, want empty", got)
	}
	if idx, err := g.DefaultDeviceIndex(); err != nil || idx != 0 {
		t.Errorf("DefaultDeviceIndex() = %d, %v, want 0", idx, err)
	}
}
