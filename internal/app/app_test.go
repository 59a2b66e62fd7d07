package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/avsync/internal/audio"
	"github.com/smazurov/avsync/internal/config"
	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/media"
)

// validOptions mirrors the CLI defaults.
func validOptions() *Options {
	return &Options{
		AudioBackend:         audio.BackendOto,
		AudioInput:           -1,
		AudioOutput:          -1,
		AudioSampleRate:      48000,
		AudioChannels:        1,
		AudioEncoding:        "s16",
		AudioBufferFrames:    2048,
		PlaybackBufferFrames: 1024,
		PlaybackMaxBuffered:  2 * time.Second,
		FrameRate:            30,
		MuteWindow:           time.Second,
		LatenessBound:        time.Second,
		ReceiverWidth:        1280,
		ReceiverHeight:       720,
		FFmpegPath:           "ffmpeg",
		SenderURL:            "rtsp://127.0.0.1:8554/avsync",
		LoggingLevel:         "info",
		LoggingFormat:        "text",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Options)
		wantErr bool
	}{
		{"defaults", func(*Options) {}, false},
		{"unknown encoding", func(o *Options) { o.AudioEncoding = "u8" }, true},
		{"zero sample rate", func(o *Options) { o.AudioSampleRate = 0 }, true},
		{"zero channels", func(o *Options) { o.AudioChannels = 0 }, true},
		{"negative frame rate", func(o *Options) { o.FrameRate = -1 }, true},
		{"zero receiver size", func(o *Options) { o.ReceiverWidth = 0 }, true},
		{"camera width only", func(o *Options) { o.CameraWidth = 640 }, true},
		{"camera size", func(o *Options) { o.CameraWidth, o.CameraHeight = 640, 480 }, false},
		{"unknown ffmpeg option", func(o *Options) { o.FFmpegOptions = []string{"bogus"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.modify(opts)
			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAudioFormat(t *testing.T) {
	opts := validOptions()
	opts.AudioSampleRate = 44100
	opts.AudioChannels = 2
	opts.AudioEncoding = "f32"

	got, err := opts.AudioFormat()
	if err != nil {
		t.Fatalf("AudioFormat() error = %v", err)
	}
	want := media.AudioFormat{SampleRate: 44100, ChannelCount: 2, Encoding: media.Float32}
	if got != want {
		t.Errorf("AudioFormat() = %v, want %v", got, want)
	}
}

func TestFFmpegOptionsDefault(t *testing.T) {
	opts := validOptions()
	got, err := opts.FFmpegOptionTypes()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(ffmpeg.DefaultOptions) {
		t.Errorf("ffmpegOptions() = %v, want %v", got, ffmpeg.DefaultOptions)
	}
}

func TestLoggingConfigModules(t *testing.T) {
	opts := validOptions()
	opts.LoggingReader = "debug"
	opts.LoggingRelay = "warn"

	cfg := opts.LoggingConfig()
	if cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("LoggingConfig() level/format = %q/%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["reader"] != "debug" || cfg.Modules["relay"] != "warn" {
		t.Errorf("LoggingConfig().Modules = %v", cfg.Modules)
	}
}

func TestOptionsFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[audio]
sample_rate = 16000
encoding = "s32"

[receiver]
lateness_bound = "250ms"
url = "rtsp://cam.local:8554/avsync"

[ffmpeg]
options = ["thread_queue_1024"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := validOptions()
	opts.Config = path
	if err := config.LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if opts.AudioSampleRate != 16000 {
		t.Errorf("AudioSampleRate = %d, want 16000", opts.AudioSampleRate)
	}
	if opts.AudioEncoding != "s32" {
		t.Errorf("AudioEncoding = %q, want s32", opts.AudioEncoding)
	}
	if opts.LatenessBound != 250*time.Millisecond {
		t.Errorf("LatenessBound = %v, want 250ms", opts.LatenessBound)
	}
	if opts.ReceiverURL != "rtsp://cam.local:8554/avsync" {
		t.Errorf("ReceiverURL = %q", opts.ReceiverURL)
	}
	if len(opts.FFmpegOptions) != 1 || opts.FFmpegOptions[0] != "thread_queue_1024" {
		t.Errorf("FFmpegOptions = %v", opts.FFmpegOptions)
	}
}

func TestNewWiresComponents(t *testing.T) {
	opts := validOptions()
	opts.ReceiverURL = "rtsp://example/avsync"

	a, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Relay != nil {
		t.Error("Relay should be nil when RelayListen is empty")
	}
	if a.Tally != nil {
		t.Error("Tally should be nil when TallyLED is empty")
	}
	if got := a.Sender.URL(); got != opts.SenderURL {
		t.Errorf("Sender.URL() = %q, want %q", got, opts.SenderURL)
	}
	if got := a.Receiver.URL(); got != opts.ReceiverURL {
		t.Errorf("Receiver.URL() = %q, want %q", got, opts.ReceiverURL)
	}
	if got := a.Grabber.Format().SampleRate; got != 48000 {
		t.Errorf("Grabber sample rate = %d, want 48000", got)
	}
	if got := a.Player.DeviceIndex(); got != -1 {
		t.Errorf("Player.DeviceIndex() = %d, want -1", got)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	opts := validOptions()
	opts.AudioBackend = "pulse"
	if _, err := New(opts); err == nil {
		t.Error("New() should fail for an unknown backend")
	}

	opts = validOptions()
	opts.AudioEncoding = ""
	if _, err := New(opts); err == nil {
		t.Error("New() should fail for an invalid audio format")
	}
}

func TestRelayStartsAndStops(t *testing.T) {
	opts := validOptions()
	opts.RelayListen = "127.0.0.1:0"

	a, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.StartRelay(); err != nil {
		t.Fatalf("StartRelay() error = %v", err)
	}
	if a.Relay.Addr() == nil {
		t.Error("relay has no address after StartRelay")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
