// Package reader runs the receiving side: it pulls packets from a network
// source, decodes them and keeps audio playback in step with the source's
// presentation clock while publishing decoded video frames.
package reader

import (
	"context"
	"image"
	"time"

	"github.com/smazurov/avsync/internal/media"
)

// StreamKind tells audio and video streams apart.
type StreamKind int

// Stream kinds.
const (
	KindAudio StreamKind = iota + 1
	KindVideo
)

func (k StreamKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// StreamInfo describes one elementary stream found by the demuxer.
type StreamInfo struct {
	Index     int
	Kind      StreamKind
	Codec     string // H264, PCMU, PCMA, L16
	ClockRate uint32
	Channels  uint16
	FmtpLine  string
}

// Packet is one demuxed compressed unit.
type Packet struct {
	StreamIndex int
	Kind        StreamKind
	PTS         time.Duration
	Payload     []byte
}

// Demuxer opens a network source and yields its packets in arrival order.
// ReadPacket returns io.EOF once the source is exhausted. A packet with an
// empty payload is not an error.
type Demuxer interface {
	Open(ctx context.Context, url string) error
	Streams() []StreamInfo
	ReadPacket(ctx context.Context) (Packet, error)
	Close() error
}

// AudioDecoder turns compressed audio into interleaved PCM. Decode returns
// nil PCM when it needs more data.
type AudioDecoder interface {
	Format() media.AudioFormat
	Decode(pkt Packet) ([]byte, error)
	Close() error
}

// VideoDecoder turns compressed video into RGBA frames. Decode returns the
// frames that became ready, possibly none.
type VideoDecoder interface {
	Decode(pkt Packet) ([]media.Frame, error)
	Close() error
}

// AudioOutput is the playback side the loop feeds. *audio.Player implements it.
type AudioOutput interface {
	media.Endpoint
	SetFormat(format media.AudioFormat)
	WriteData(pts time.Duration, chunk []byte)
	SetStreamTime(t time.Duration)
	StreamTime() time.Duration
	ElapsedMilliseconds() int64
	Ahead() time.Duration
}

// Components creates the per-run demuxer and decoders.
type Components struct {
	Demuxer      func() Demuxer
	AudioDecoder func(info StreamInfo) (AudioDecoder, error)
	VideoDecoder func(info StreamInfo, size image.Point) (VideoDecoder, error)
}
