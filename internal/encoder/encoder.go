// Package encoder turns captured PCM and camera frames into a muxed network
// stream.
package encoder

import (
	"image"

	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/media"
)

// Params configures one encoding session.
type Params struct {
	URL          string
	Audio        media.AudioFormat
	VideoSize    image.Point // zero disables video
	FrameRate    float64
	VideoCodec   string
	Preset       string
	VideoBitrate string
	AudioCodec   string
	AudioBitrate string
	Options      []ffmpeg.OptionType
}

// Encoder accepts raw media and pushes it to Params.URL. Encode calls never
// block on the encoder's own I/O; data that cannot be queued is dropped.
type Encoder interface {
	Open(p Params) error
	EncodeAudio(pcm []byte) error
	EncodeVideo(img image.Image) error
	Close() error
	Running() bool
	// SetExitHandler registers a callback for an exit that Close did not request.
	SetExitHandler(h func(err error))
}
