package reader

import (
	"encoding/binary"
	"fmt"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/pcm"

	"github.com/smazurov/avsync/internal/media"
)

// PCMDecoder turns G.711 or L16 RTP payloads into interleaved signed 16-bit
// little-endian PCM.
type PCMDecoder struct {
	codec  string
	format media.AudioFormat
}

// NewPCMDecoder returns a decoder for PCMU, PCMA or L16 streams.
func NewPCMDecoder(info StreamInfo) (AudioDecoder, error) {
	switch info.Codec {
	case core.CodecPCMU, core.CodecPCMA, core.CodecPCM:
	default:
		return nil, fmt.Errorf("unsupported audio codec %q", info.Codec)
	}

	rate := int(info.ClockRate)
	if rate <= 0 {
		rate = 8000
	}
	channels := int(info.Channels)
	if channels <= 0 {
		channels = 1
	}
	return &PCMDecoder{
		codec: info.Codec,
		format: media.AudioFormat{
			SampleRate:   rate,
			ChannelCount: channels,
			Encoding:     media.SignedInt16,
		},
	}, nil
}

// Format implements AudioDecoder.
func (d *PCMDecoder) Format() media.AudioFormat { return d.format }

// Decode implements AudioDecoder.
func (d *PCMDecoder) Decode(pkt Packet) ([]byte, error) {
	in := pkt.Payload
	switch d.codec {
	case core.CodecPCMU:
		out := make([]byte, 2*len(in))
		for i, b := range in {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(pcm.PCMUtoPCM(b)))
		}
		return out, nil
	case core.CodecPCMA:
		out := make([]byte, 2*len(in))
		for i, b := range in {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(pcm.PCMAtoPCM(b)))
		}
		return out, nil
	default:
		// L16 is big-endian on the wire.
		n := len(in) &^ 1
		out := make([]byte, n)
		for i := 0; i < n; i += 2 {
			out[i], out[i+1] = in[i+1], in[i]
		}
		return out, nil
	}
}

// Close implements AudioDecoder.
func (d *PCMDecoder) Close() error { return nil }
