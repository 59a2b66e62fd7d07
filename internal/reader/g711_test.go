package reader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/pcm"

	"github.com/smazurov/avsync/internal/media"
)

func TestPCMDecoderFormat(t *testing.T) {
	tests := []struct {
		info StreamInfo
		want media.AudioFormat
	}{
		{StreamInfo{Codec: core.CodecPCMU}, media.AudioFormat{SampleRate: 8000, ChannelCount: 1, Encoding: media.SignedInt16}},
		{StreamInfo{Codec: core.CodecPCM, ClockRate: 44100, Channels: 2}, media.AudioFormat{SampleRate: 44100, ChannelCount: 2, Encoding: media.SignedInt16}},
	}
	for _, tt := range tests {
		dec, err := NewPCMDecoder(tt.info)
		if err != nil {
			t.Fatalf("NewPCMDecoder(%s) error = %v", tt.info.Codec, err)
		}
		if got := dec.Format(); got != tt.want {
			t.Errorf("Format() = %v, want %v", got, tt.want)
		}
	}

	if _, err := NewPCMDecoder(StreamInfo{Codec: "MPEG4-GENERIC"}); err == nil {
		t.Error("NewPCMDecoder() should reject AAC")
	}
}

func TestPCMDecoderDecode(t *testing.T) {
	in := []byte{0x00, 0x7F, 0xFF, 0xD5}

	ulaw, _ := NewPCMDecoder(StreamInfo{Codec: core.CodecPCMU})
	out, err := ulaw.Decode(Packet{Payload: in})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2*len(in) {
		t.Fatalf("decoded %d bytes, want %d", len(out), 2*len(in))
	}
	for i, b := range in {
		if got, want := int16(binary.LittleEndian.Uint16(out[2*i:])), pcm.PCMUtoPCM(b); got != want {
			t.Errorf("PCMU sample %d = %d, want %d", i, got, want)
		}
	}

	alaw, _ := NewPCMDecoder(StreamInfo{Codec: core.CodecPCMA})
	out, _ = alaw.Decode(Packet{Payload: in})
	for i, b := range in {
		if got, want := int16(binary.LittleEndian.Uint16(out[2*i:])), pcm.PCMAtoPCM(b); got != want {
			t.Errorf("PCMA sample %d = %d, want %d", i, got, want)
		}
	}

	l16, _ := NewPCMDecoder(StreamInfo{Codec: core.CodecPCM})
	out, _ = l16.Decode(Packet{Payload: []byte{0x12, 0x34, 0xAB, 0xCD, 0xEE}})
	if want := []byte{0x34, 0x12, 0xCD, 0xAB}; !bytes.Equal(out, want) {
		t.Errorf("L16 decode = %x, want %x", out, want)
	}
}
