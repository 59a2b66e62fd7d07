package tally

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/avsync/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLight struct {
	mu    sync.Mutex
	modes []Mode
}

func (f *fakeLight) Name() string { return "fake" }

func (f *fakeLight) Set(m Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, m)
	return nil
}

func (f *fakeLight) last() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.modes) == 0 {
		return -1
	}
	return f.modes[len(f.modes)-1]
}

func waitMode(t *testing.T, light *fakeLight, want Mode) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if light.last() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("light mode = %v, want %v", light.last(), want)
}

func TestIndicatorFollowsState(t *testing.T) {
	light := &fakeLight{}
	bus := events.New()
	ind := NewIndicator(light, bus, testLogger())
	ind.Start()
	defer ind.Stop()

	waitMode(t, light, Off)

	bus.Publish(events.ReceiverStateChangedEvent{Running: true})
	waitMode(t, light, Blink)

	bus.Publish(events.SenderStateChangedEvent{State: "active"})
	waitMode(t, light, On)

	bus.Publish(events.SenderStateChangedEvent{State: "suspended"})
	waitMode(t, light, Blink)

	bus.Publish(events.SenderStateChangedEvent{State: "stopped"})
	bus.Publish(events.ReceiverStateChangedEvent{Running: false})
	waitMode(t, light, Off)
}

func TestIndicatorStopTurnsOff(t *testing.T) {
	light := &fakeLight{}
	bus := events.New()
	ind := NewIndicator(light, bus, testLogger())
	ind.Start()

	bus.Publish(events.SenderStateChangedEvent{State: "active"})
	waitMode(t, light, On)

	ind.Stop()
	if got := ind.Mode(); got != Off {
		t.Errorf("Mode() after Stop = %v, want %v", got, Off)
	}

	// No longer subscribed.
	bus.Publish(events.SenderStateChangedEvent{State: "active"})
	time.Sleep(20 * time.Millisecond)
	if got := light.last(); got != Off {
		t.Errorf("light after Stop = %v, want %v", got, Off)
	}
}

func TestSysfsLightSet(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "usr_led")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, attr := range []string{"brightness", "trigger"} {
		if err := os.WriteFile(filepath.Join(dir, attr), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	light, err := NewSysfsLight(root, "usr_led")
	if err != nil {
		t.Fatalf("NewSysfsLight() error = %v", err)
	}

	tests := []struct {
		mode       Mode
		trigger    string
		brightness string
	}{
		{On, "none", "1"},
		{Blink, "heartbeat", "1"},
		{Off, "none", "0"},
	}
	for _, tt := range tests {
		if err := light.Set(tt.mode); err != nil {
			t.Fatalf("Set(%v) error = %v", tt.mode, err)
		}
		trigger, _ := os.ReadFile(filepath.Join(dir, "trigger"))
		brightness, _ := os.ReadFile(filepath.Join(dir, "brightness"))
		if string(trigger) != tt.trigger || string(brightness) != tt.brightness {
			t.Errorf("Set(%v) wrote trigger=%q brightness=%q, want %q %q",
				tt.mode, trigger, brightness, tt.trigger, tt.brightness)
		}
	}
}

func TestNewSysfsLightMissing(t *testing.T) {
	if _, err := NewSysfsLight(t.TempDir(), "nope"); err == nil {
		t.Error("NewSysfsLight() should fail for a missing LED")
	}
}

func TestBoardLED(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"FriendlyElec NanoPC-T6", "usr_led"},
		{"Raspberry Pi 5 Model B Rev 1.0", "ACT"},
		{"Orange Pi 5 Plus", "green_led"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := boardLED(tt.model); got != tt.want {
			t.Errorf("boardLED(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestDetectBoardTrimsNUL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	if err := os.WriteFile(path, []byte("Raspberry Pi 4\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := detectBoard(path); got != "Raspberry Pi 4" {
		t.Errorf("detectBoard() = %q", got)
	}
	if got := detectBoard(filepath.Join(t.TempDir(), "missing")); got != "unknown" {
		t.Errorf("detectBoard(missing) = %q, want unknown", got)
	}
}

func TestNewDisabled(t *testing.T) {
	if l := New("", testLogger()); l != nil {
		t.Errorf("New(\"\") = %v, want nil", l)
	}
}
