package streamer

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/media"
)

func newTestSender() (*Sender, *fakeAudio, *fakeVideo) {
	a, v := newFakeAudio(), newFakeVideo()
	s := NewSender(Config{}, a, v, &fakeEncoder{}, events.New(), discardLogger())
	return s, a, v
}

func TestSenderRequiresURL(t *testing.T) {
	s, _, _ := newTestSender()
	if err := s.Start(context.Background(), ""); !errors.Is(err, ErrNoURL) {
		t.Errorf("Start() = %v, want ErrNoURL", err)
	}

	s.SetURL("srt://host:9000")
	if err := s.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() with stored URL error = %v", err)
	}
	defer s.Stop()
	if got := s.Status().URL; got != "srt://host:9000" {
		t.Errorf("Status().URL = %q", got)
	}
}

func TestSenderLastFrame(t *testing.T) {
	s, _, v := newTestSender()
	if err := s.Start(context.Background(), "rtmp://host/live"); err != nil {
		t.Fatal(err)
	}
	if s.LastFrame() != nil {
		t.Error("LastFrame() before any frame should be nil")
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	v.deliver(img)
	if s.LastFrame() != img {
		t.Error("LastFrame() should return the delivered frame")
	}

	s.Stop()
	if s.LastFrame() != nil {
		t.Error("LastFrame() after Stop should be nil")
	}
}

func TestSenderDeviceSelection(t *testing.T) {
	s, a, v := newTestSender()
	s.SetCameraIndex(2)
	s.SetAudioDeviceIndex(3)
	s.SetFrameRate(15)
	s.SetFrameRate(-1)

	if v.DeviceIndex() != 2 || s.CameraIndex() != 2 {
		t.Errorf("camera index = %d, want 2", v.DeviceIndex())
	}
	if a.DeviceIndex() != 3 || s.AudioDeviceIndex() != 3 {
		t.Errorf("audio index = %d, want 3", a.DeviceIndex())
	}
	if s.FrameRate() != 15 {
		t.Errorf("FrameRate() = %v, want 15", s.FrameRate())
	}

	st := s.Status()
	if st.State != media.StateStopped || st.CameraIndex != 2 || st.AudioDeviceIndex != 3 {
		t.Errorf("Status() = %+v", st)
	}
}
