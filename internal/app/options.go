package app

import (
	"fmt"
	"image"
	"time"

	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Audio settings
	AudioBackend      string `help:"Audio backend (malgo, oto)" default:"malgo" toml:"audio.backend" env:"AUDIO_BACKEND"`
	AudioInput        int    `help:"Capture device index, -1 for the system default" default:"-1" toml:"audio.input" env:"AUDIO_INPUT"`
	AudioOutput       int    `help:"Playback device index, -1 for the system default" default:"-1" toml:"audio.output" env:"AUDIO_OUTPUT"`
	AudioSampleRate   int    `help:"Capture sample rate in Hz" default:"48000" toml:"audio.sample_rate" env:"AUDIO_SAMPLE_RATE"`
	AudioChannels     int    `help:"Capture channel count" default:"1" toml:"audio.channels" env:"AUDIO_CHANNELS"`
	AudioEncoding     string `help:"Capture sample encoding (s8, s16, s24, s32, f32, f64)" default:"s16" toml:"audio.encoding" env:"AUDIO_ENCODING"`
	AudioBufferFrames int    `help:"Capture period in frames" default:"2048" toml:"audio.buffer_frames" env:"AUDIO_BUFFER_FRAMES"`

	PlaybackBufferFrames int           `help:"Playback period in frames" default:"1024" toml:"audio.playback_buffer_frames" env:"AUDIO_PLAYBACK_BUFFER_FRAMES"`
	PlaybackMaxBuffered  time.Duration `help:"Playback staging bound" default:"2s" toml:"audio.max_buffered" env:"AUDIO_MAX_BUFFERED"`

	// Video settings
	Camera       int           `help:"Camera index" default:"0" toml:"video.camera" env:"VIDEO_CAMERA"`
	CameraFormat string        `help:"Camera input format (mjpeg, yuyv422), empty lets the driver choose" toml:"video.input_format" env:"VIDEO_INPUT_FORMAT"`
	CameraWidth  int           `help:"Capture width, 0 selects the largest size" default:"0" toml:"video.width" env:"VIDEO_WIDTH"`
	CameraHeight int           `help:"Capture height" default:"0" toml:"video.height" env:"VIDEO_HEIGHT"`
	FrameRate    float64       `help:"Capture and encode frame rate" default:"30" toml:"video.frame_rate" env:"VIDEO_FRAME_RATE"`
	CameraWarmup time.Duration `help:"Camera output discarded after start" default:"500ms" toml:"video.warmup" env:"VIDEO_WARMUP"`

	// Sender settings
	SenderURL    string        `help:"Default destination for the sender" default:"rtsp://127.0.0.1:8554/avsync" toml:"sender.url" env:"SENDER_URL"`
	MuteWindow   time.Duration `help:"Startup period during which captured audio is replaced by silence" default:"1s" toml:"sender.mute_window" env:"SENDER_MUTE_WINDOW"`
	VideoCodec   string        `help:"Video encoder" default:"libx264" toml:"sender.video_codec" env:"SENDER_VIDEO_CODEC"`
	Preset       string        `help:"Video encoder preset" default:"veryfast" toml:"sender.preset" env:"SENDER_PRESET"`
	VideoBitrate string        `help:"Video bitrate" default:"2M" toml:"sender.video_bitrate" env:"SENDER_VIDEO_BITRATE"`
	AudioCodec   string        `help:"Audio encoder; receivers decode pcm_mulaw, pcm_alaw and pcm_s16be" default:"pcm_mulaw" toml:"sender.audio_codec" env:"SENDER_AUDIO_CODEC"`
	AudioBitrate string        `help:"Audio bitrate for compressed codecs" default:"128k" toml:"sender.audio_bitrate" env:"SENDER_AUDIO_BITRATE"`

	// Receiver settings
	ReceiverURL    string        `help:"Default source for the receiver" toml:"receiver.url" env:"RECEIVER_URL"`
	LatenessBound  time.Duration `help:"Audio arriving later than this behind the playback clock is dropped" default:"1s" toml:"receiver.lateness_bound" env:"RECEIVER_LATENESS_BOUND"`
	ReceiverWidth  int           `help:"Decoded frame width" default:"1280" toml:"receiver.width" env:"RECEIVER_WIDTH"`
	ReceiverHeight int           `help:"Decoded frame height" default:"720" toml:"receiver.height" env:"RECEIVER_HEIGHT"`

	// FFmpeg settings
	FFmpegPath    string   `help:"FFmpeg command, may include a launcher prefix" default:"ffmpeg" toml:"ffmpeg.path" env:"FFMPEG_PATH"`
	FFmpegOptions []string `help:"FFmpeg option keys, empty for the defaults" toml:"ffmpeg.options" env:"FFMPEG_OPTIONS"`

	// Relay settings
	RelayListen string `help:"RTSP relay listen address, empty disables the relay" default:":8554" toml:"relay.listen" env:"RELAY_LISTEN"`

	// Tally settings
	TallyLED string `help:"On-air LED: a /sys/class/leds name, auto for the board default, empty disables" toml:"tally.led" env:"TALLY_LED"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingAudio    string `help:"Audio device logging level" default:"info" toml:"logging.audio" env:"LOGGING_AUDIO"`
	LoggingVideo    string `help:"Camera logging level" default:"info" toml:"logging.video" env:"LOGGING_VIDEO"`
	LoggingStreamer string `help:"Sender logging level" default:"info" toml:"logging.streamer" env:"LOGGING_STREAMER"`
	LoggingReader   string `help:"Receiver logging level" default:"info" toml:"logging.reader" env:"LOGGING_READER"`
	LoggingEncoder  string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingFFmpeg   string `help:"FFmpeg output logging level" default:"warn" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingRelay    string `help:"RTSP relay logging level" default:"info" toml:"logging.relay" env:"LOGGING_RELAY"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingSystem   string `help:"systemd and tally logging level" default:"info" toml:"logging.system" env:"LOGGING_SYSTEM"`
}

// LoggingConfig returns the logging settings carried by the options.
func (o *Options) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"audio":    o.LoggingAudio,
			"video":    o.LoggingVideo,
			"streamer": o.LoggingStreamer,
			"reader":   o.LoggingReader,
			"encoder":  o.LoggingEncoder,
			"ffmpeg":   o.LoggingFFmpeg,
			"relay":    o.LoggingRelay,
			"api":      o.LoggingAPI,
			"system":   o.LoggingSystem,
		},
	}
}

// AudioFormat returns the capture format.
func (o *Options) AudioFormat() (media.AudioFormat, error) {
	enc, err := media.ParseSampleEncoding(o.AudioEncoding)
	if err != nil {
		return media.AudioFormat{}, err
	}
	f := media.AudioFormat{SampleRate: o.AudioSampleRate, ChannelCount: o.AudioChannels, Encoding: enc}
	if err := f.Validate(); err != nil {
		return media.AudioFormat{}, fmt.Errorf("audio format: %w", err)
	}
	return f, nil
}

// ReceiverSize returns the decoded frame size.
func (o *Options) ReceiverSize() image.Point {
	return image.Pt(o.ReceiverWidth, o.ReceiverHeight)
}

// Validate checks values that would otherwise fail late inside a session.
func (o *Options) Validate() error {
	if _, err := o.AudioFormat(); err != nil {
		return err
	}
	if _, err := o.FFmpegOptionTypes(); err != nil {
		return err
	}
	if o.FrameRate < 0 {
		return fmt.Errorf("frame rate must not be negative, got %v", o.FrameRate)
	}
	if o.ReceiverWidth <= 0 || o.ReceiverHeight <= 0 {
		return fmt.Errorf("receiver size must be positive, got %dx%d", o.ReceiverWidth, o.ReceiverHeight)
	}
	if (o.CameraWidth == 0) != (o.CameraHeight == 0) {
		return fmt.Errorf("camera width and height must be set together")
	}
	return nil
}

// FFmpegOptionTypes returns the configured ffmpeg options, or the defaults
// when none are set.
func (o *Options) FFmpegOptionTypes() ([]ffmpeg.OptionType, error) {
	if len(o.FFmpegOptions) == 0 {
		return ffmpeg.DefaultOptions, nil
	}
	return ffmpeg.ParseOptions(o.FFmpegOptions)
}
