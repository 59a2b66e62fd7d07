package reader

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTracksShareOneTimeline(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	d := NewRTSPDemuxer(discardLogger())
	d.now = clock.now

	audio := &track{info: StreamInfo{Index: 0, Kind: KindAudio, Codec: "PCMU", ClockRate: 8000}}
	video := &track{
		info: StreamInfo{Index: 1, Kind: KindVideo, Codec: "H264", ClockRate: 90000},
		h264: newH264Assembler(testFmtp),
	}

	// Audio starts the session; the two RTP clocks have unrelated origins.
	d.deliver(audio, rtpPacket(5000, false, 0xFF))

	// Video joins 500ms later with a P-frame that waits for the next IDR.
	clock.advance(500 * time.Millisecond)
	d.deliver(video, rtpPacket(700000, true, 0x41, 0x9A, 0x01))

	// The IDR arrives 1.5s after the P-frame, together with the matching audio.
	clock.advance(1500 * time.Millisecond)
	d.deliver(audio, rtpPacket(5000+16000, false, 0xFF))
	d.deliver(video, rtpPacket(700000+135000, true, 0x65, 0x88, 0x80))

	want := []struct {
		kind StreamKind
		pts  time.Duration
	}{
		{KindAudio, 0},
		{KindAudio, 2 * time.Second},
		{KindVideo, 2 * time.Second},
	}
	ctx := context.Background()
	for i, w := range want {
		pkt, err := d.ReadPacket(ctx)
		if err != nil {
			t.Fatalf("ReadPacket() #%d error = %v", i, err)
		}
		if pkt.Kind != w.kind || pkt.PTS != w.pts {
			t.Errorf("packet #%d = %v at %v, want %v at %v", i, pkt.Kind, pkt.PTS, w.kind, w.pts)
		}
	}
}

func TestTimestampUnwrapBase(t *testing.T) {
	var u tsUnwrapper
	u.start(90000, 750*time.Millisecond)
	if got := u.pts(90000, 90000); got != 750*time.Millisecond {
		t.Errorf("pts at start = %v, want 750ms", got)
	}
	if got := u.pts(180000, 90000); got != 1750*time.Millisecond {
		t.Errorf("pts one second later = %v, want 1.75s", got)
	}
}
