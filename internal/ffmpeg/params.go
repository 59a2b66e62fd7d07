package ffmpeg

import "github.com/smazurov/avsync/internal/media"

// EncodeParams describes the sender's encoder: PCM on stdin, raw RGB24
// frames on file descriptor 3, one muxed stream pushed to OutputURL.
type EncodeParams struct {
	// Audio input
	Audio media.AudioFormat

	// Video input; a zero Width disables the video input.
	Width     int
	Height    int
	FrameRate float64

	// Encoders
	VideoCodec   string // libx264 by default
	Preset       string // veryfast by default for software encoders
	VideoBitrate string // 2M
	GOP          int    // keyframe interval, defaults to two seconds of frames
	AudioCodec   string // aac by default
	AudioBitrate string // 128k

	// Progress writes -progress key=value blocks to stdout.
	Progress bool

	OutputURL string
	Options   []OptionType
}

// CaptureParams describes a camera read as raw RGB24 frames on stdout.
type CaptureParams struct {
	DevicePath  string
	InputFormat string // yuyv422, mjpeg; empty lets the driver choose
	Width       int
	Height      int
	FrameRate   float64
	Options     []OptionType
}

// DecodeParams describes a video decoder reading an H.264 Annex B
// elementary stream on stdin and writing RGB24 frames of a fixed size on
// stdout.
type DecodeParams struct {
	Width   int
	Height  int
	Options []OptionType
}
