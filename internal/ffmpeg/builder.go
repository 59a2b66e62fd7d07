// Package ffmpeg builds argument lists for the ffmpeg helpers: the sender's
// encoder, the camera source and the receiver's video decoder.
package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/avsync/internal/media"
)

// Base returns the flags every invocation starts with. "level+" prefixes
// each line with its log level for ParseLogLevel.
func Base() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "level+info"}
}

// SampleFormat returns the raw PCM demuxer name for an encoding.
func SampleFormat(e media.SampleEncoding) (string, error) {
	switch e {
	case media.SignedInt8:
		return "s8", nil
	case media.SignedInt16:
		return "s16le", nil
	case media.SignedInt24:
		return "s24le", nil
	case media.SignedInt32:
		return "s32le", nil
	case media.Float32:
		return "f32le", nil
	case media.Float64:
		return "f64le", nil
	default:
		return "", fmt.Errorf("no raw format for %s", e)
	}
}

// OutputFormat picks the muxer for a destination URL.
func OutputFormat(url string) []string {
	switch {
	case strings.HasPrefix(url, "rtmp://"), strings.HasPrefix(url, "rtmps://"):
		return []string{"-f", "flv"}
	case strings.HasPrefix(url, "rtsp://"), strings.HasPrefix(url, "rtsps://"):
		return []string{"-rtsp_transport", "tcp", "-f", "rtsp"}
	case strings.HasPrefix(url, "srt://"), strings.HasPrefix(url, "udp://"), strings.HasPrefix(url, "tcp://"):
		return []string{"-muxdelay", "0", "-muxpreload", "0", "-f", "mpegts"}
	default:
		// Files: let ffmpeg choose from the extension.
		return nil
	}
}

func formatRate(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

// BuildEncodeArgs builds the encoder command: input 0 is PCM on stdin,
// input 1 (when Width > 0) is raw RGB24 video on pipe:3.
func BuildEncodeArgs(p EncodeParams) ([]string, error) {
	if p.OutputURL == "" {
		return nil, errors.New("output URL is required")
	}
	if err := p.Audio.Validate(); err != nil {
		return nil, err
	}
	sampleFmt, err := SampleFormat(p.Audio.Encoding)
	if err != nil {
		return nil, err
	}
	hasVideo := p.Width > 0 && p.Height > 0
	if hasVideo && p.FrameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %v", p.FrameRate)
	}

	args := Base()

	args = append(args, inputArgs(p.Options)...)
	args = append(args,
		"-f", sampleFmt,
		"-ar", strconv.Itoa(p.Audio.SampleRate),
		"-ac", strconv.Itoa(p.Audio.ChannelCount),
		"-i", "pipe:0",
	)

	if hasVideo {
		args = append(args, inputArgs(p.Options)...)
		args = append(args,
			"-f", "rawvideo",
			"-pix_fmt", "rgb24",
			"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
			"-framerate", formatRate(p.FrameRate),
			"-i", "pipe:3",
			"-map", "1:v", "-map", "0:a",
		)

		codec := p.VideoCodec
		if codec == "" {
			codec = "libx264"
		}
		args = append(args, "-c:v", codec, "-pix_fmt", "yuv420p")

		if !isHardwareEncoder(codec) {
			preset := p.Preset
			if preset == "" {
				preset = "veryfast"
			}
			args = append(args, "-preset", preset, "-tune", "zerolatency")
		}
		if p.VideoBitrate != "" {
			args = append(args, "-b:v", p.VideoBitrate)
		}
		gop := p.GOP
		if gop <= 0 {
			gop = int(p.FrameRate*2 + 0.5)
		}
		args = append(args, "-g", strconv.Itoa(gop), "-bf", "0")
	} else {
		args = append(args, "-map", "0:a")
	}

	audioCodec := p.AudioCodec
	if audioCodec == "" {
		audioCodec = "aac"
	}
	args = append(args, "-c:a", audioCodec)
	if p.AudioBitrate != "" {
		args = append(args, "-b:a", p.AudioBitrate)
	}

	if p.Progress {
		args = append(args, "-progress", "pipe:1", "-stats_period", "1")
	}
	args = append(args, outputArgs(p.Options)...)
	args = append(args, OutputFormat(p.OutputURL)...)
	args = append(args, p.OutputURL)
	return args, nil
}

// BuildCaptureArgs builds the camera command writing RGB24 frames to stdout.
func BuildCaptureArgs(p CaptureParams) ([]string, error) {
	if p.DevicePath == "" {
		return nil, errors.New("device path is required")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", p.Width, p.Height)
	}

	args := Base()
	args = append(args, inputArgs(p.Options)...)
	args = append(args, "-f", "v4l2")
	if p.InputFormat != "" {
		args = append(args, "-input_format", p.InputFormat)
	}
	args = append(args, "-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height))
	if p.FrameRate > 0 {
		args = append(args, "-framerate", formatRate(p.FrameRate))
	}
	args = append(args,
		"-i", p.DevicePath,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	return args, nil
}

// BuildDecodeArgs builds the decoder command: H.264 Annex B on stdin, RGB24
// frames scaled to the requested size on stdout. Frame timing is kept by
// the caller, so output is passthrough.
func BuildDecodeArgs(p DecodeParams) ([]string, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", p.Width, p.Height)
	}

	args := Base()
	args = append(args, inputArgs(p.Options)...)
	args = append(args,
		"-f", "h264",
		"-i", "pipe:0",
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height),
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	return args, nil
}
