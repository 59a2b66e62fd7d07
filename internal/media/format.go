// Package media holds the value types and contracts shared by capture,
// playback and orchestration code: audio formats, endpoint state machines
// and the domain error type.
package media

import (
	"fmt"
	"strings"
	"time"
)

// SampleEncoding describes how one PCM sample is stored.
type SampleEncoding int

// Supported sample encodings.
const (
	SignedInt8 SampleEncoding = iota + 1
	SignedInt16
	SignedInt24
	SignedInt32
	Float32
	Float64
)

// Width returns the sample size in bytes, or 0 for an unknown encoding.
func (e SampleEncoding) Width() int {
	switch e {
	case SignedInt8:
		return 1
	case SignedInt16:
		return 2
	case SignedInt24:
		return 3
	case SignedInt32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (e SampleEncoding) String() string {
	switch e {
	case SignedInt8:
		return "s8"
	case SignedInt16:
		return "s16"
	case SignedInt24:
		return "s24"
	case SignedInt32:
		return "s32"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseSampleEncoding converts a config string such as "s16" or "f32" to an encoding.
func ParseSampleEncoding(s string) (SampleEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s8", "int8":
		return SignedInt8, nil
	case "s16", "s16le", "int16":
		return SignedInt16, nil
	case "s24", "s24le", "int24":
		return SignedInt24, nil
	case "s32", "s32le", "int32":
		return SignedInt32, nil
	case "f32", "f32le", "float32":
		return Float32, nil
	case "f64", "f64le", "float64":
		return Float64, nil
	default:
		return 0, fmt.Errorf("unknown sample encoding %q", s)
	}
}

// AudioFormat is the PCM layout contract between a device and its consumer.
// It is passed by value and must not change while a session is active.
type AudioFormat struct {
	SampleRate   int
	ChannelCount int
	Encoding     SampleEncoding
}

// Validate reports whether the format can be used to open a device.
func (f AudioFormat) Validate() error {
	if f.SampleRate <= 0 {
		return NewError(KindInvalidFormat, fmt.Sprintf("sample rate must be positive, got %d", f.SampleRate), nil)
	}
	if f.ChannelCount <= 0 {
		return NewError(KindInvalidFormat, fmt.Sprintf("channel count must be positive, got %d", f.ChannelCount), nil)
	}
	if f.Encoding.Width() == 0 {
		return NewError(KindInvalidFormat, "unknown sample encoding "+f.Encoding.String(), nil)
	}
	return nil
}

// BytesPerFrame is the size of one interleaved frame (one sample per channel).
func (f AudioFormat) BytesPerFrame() int {
	return f.ChannelCount * f.Encoding.Width()
}

// BytesPerSecond is the PCM data rate of the format.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// BytesFor returns the number of bytes covering d, rounded down to whole frames.
func (f AudioFormat) BytesFor(d time.Duration) int {
	bpf := f.BytesPerFrame()
	if bpf == 0 || f.SampleRate <= 0 {
		return 0
	}
	frames := int(int64(d) * int64(f.SampleRate) / int64(time.Second))
	return frames * bpf
}

// DurationOf returns the play time of n bytes in this format.
func (f AudioFormat) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

func (f AudioFormat) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.ChannelCount, f.Encoding)
}
