package reader

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/metrics"
)

// DefaultLatenessBound is how far an audio packet may trail the run's wall
// clock before it is dropped.
const DefaultLatenessBound = time.Second

// DefaultVideoSize is the decode size used when the stream does not
// announce one.
var DefaultVideoSize = image.Pt(1280, 720)

// ErrNoURL is returned by Start when no source URL is known.
var ErrNoURL = errors.New("no source URL is set")

// Config tunes the receive loop.
type Config struct {
	LatenessBound time.Duration
	VideoSize     image.Point // decode size when the stream has no SPS
}

// Status is a snapshot of the receiver.
type Status struct {
	Running    bool   `json:"running" doc:"Whether the receive loop is running"`
	URL        string `json:"url" doc:"Source URL"`
	Muted      bool   `json:"muted" doc:"Whether playback is suspended"`
	PositionMs int64  `json:"position_ms" doc:"PTS of the last processed packet"`
	ElapsedMs  int64  `json:"elapsed_ms" doc:"Playback clock in milliseconds"`
	HasAudio   bool   `json:"has_audio" doc:"Whether the current run found an audio stream"`
	HasVideo   bool   `json:"has_video" doc:"Whether the current run found a video stream"`
	AheadMs    int64  `json:"audio_ahead_ms" doc:"Lead of the next staged audio over the playback clock"`
	LastError  string `json:"last_error,omitempty" doc:"Error that ended the last run"`
}

// Reader is the receive loop. Each Start runs one pass over the source on
// its own goroutine; Stop only requests termination.
type Reader struct {
	cfg    Config
	comps  Components
	player AudioOutput
	bus    *events.Bus
	logger logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	url     string
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error

	running   atomic.Bool
	hasAudio  atomic.Bool
	hasVideo  atomic.Bool
	position  atomic.Int64 // nanoseconds
	onFrame   atomic.Pointer[media.FrameHandler]
	lastFrame atomic.Pointer[media.Frame]
}

// New creates a Reader.
func New(cfg Config, comps Components, player AudioOutput, bus *events.Bus, logger logging.Logger) *Reader {
	if cfg.LatenessBound <= 0 {
		cfg.LatenessBound = DefaultLatenessBound
	}
	if cfg.VideoSize.X <= 0 || cfg.VideoSize.Y <= 0 {
		cfg.VideoSize = DefaultVideoSize
	}
	return &Reader{
		cfg:    cfg,
		comps:  comps,
		player: player,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// SetFrameHandler registers the consumer of decoded frames. It runs on the
// loop goroutine and receives a frame with a nil Image when a run ends.
func (r *Reader) SetFrameHandler(h media.FrameHandler) {
	r.onFrame.Store(&h)
}

// URL returns the stored source URL.
func (r *Reader) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// SetURL stores the source used by the next Start.
func (r *Reader) SetURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.url = url
}

// Running reports whether a run is in progress.
func (r *Reader) Running() bool { return r.running.Load() }

// Done is closed when the current or last run ends. It is nil before the
// first Start.
func (r *Reader) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// LastError returns the error that ended the last run, if any.
func (r *Reader) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Position returns the PTS of the last processed packet.
func (r *Reader) Position() time.Duration {
	return time.Duration(r.position.Load())
}

// LastFrame returns the most recent decoded frame, nil after a run ends.
func (r *Reader) LastFrame() image.Image {
	if f := r.lastFrame.Load(); f != nil {
		return f.Image
	}
	return nil
}

// Mute suspends playback without stopping the run.
func (r *Reader) Mute() { r.player.Suspend() }

// Unmute resumes playback.
func (r *Reader) Unmute() { r.player.Resume() }

// Status returns a snapshot of the receiver.
func (r *Reader) Status() Status {
	st := Status{
		Running:    r.Running(),
		URL:        r.URL(),
		Muted:      r.player.State() == media.StateSuspended,
		PositionMs: r.Position().Milliseconds(),
		ElapsedMs:  r.player.ElapsedMilliseconds(),
		HasAudio:   r.hasAudio.Load(),
		HasVideo:   r.hasVideo.Load(),
		AheadMs:    r.player.Ahead().Milliseconds(),
	}
	if err := r.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// Start begins a run over url, or over the stored URL when url is empty.
// It is a no-op while a run is in progress. Failures to open the source
// are reported through LastError and the event bus.
func (r *Reader) Start(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if url != "" {
		r.url = url
	}
	if r.url == "" {
		r.logger.Warn("No source URL is set")
		return ErrNoURL
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.lastErr = nil
	r.position.Store(0)

	go r.run(runCtx, r.url, done)
	return nil
}

// Stop requests the current run to end. It does not wait.
func (r *Reader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// session holds the per-run resources.
type session struct {
	demuxer  Demuxer
	audioIdx int
	videoIdx int
	audioDec AudioDecoder
	videoDec VideoDecoder
}

func (s *session) close(logger logging.Logger) {
	if s.audioDec != nil {
		if err := s.audioDec.Close(); err != nil {
			logger.Debug("Audio decoder close failed", "error", err)
		}
	}
	if s.videoDec != nil {
		if err := s.videoDec.Close(); err != nil {
			logger.Debug("Video decoder close failed", "error", err)
		}
	}
	if s.demuxer != nil {
		if err := s.demuxer.Close(); err != nil {
			logger.Debug("Demuxer close failed", "error", err)
		}
	}
}

func (r *Reader) run(ctx context.Context, url string, done chan struct{}) {
	sess := &session{audioIdx: -1, videoIdx: -1}
	r.publishState(true, url)

	defer func() {
		r.publishFrame(media.Frame{})
		r.lastFrame.Store(nil)
		if sess.audioDec != nil {
			r.player.Stop()
		}
		sess.close(r.logger)
		r.hasAudio.Store(false)
		r.hasVideo.Store(false)

		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		r.running.Store(false)
		r.publishState(false, url)
		close(done)
	}()

	if err := r.open(ctx, url, sess); err != nil {
		r.fail(err)
		return
	}

	r.logger.Info("Receiving", "url", url, "audio", sess.audioDec != nil, "video", sess.videoDec != nil)
	if err := r.loop(ctx, sess); err != nil {
		r.fail(err)
		return
	}
	r.logger.Info("Receive loop ended", "url", url, "position", r.Position())
}

// open opens the source and the decoders for at most one audio and one
// video stream. A missing stream of either kind is tolerated.
func (r *Reader) open(ctx context.Context, url string, sess *session) error {
	dmx := r.comps.Demuxer()
	if err := dmx.Open(ctx, url); err != nil {
		return media.NewError(media.KindSourceOpen, "unable to open "+url, err)
	}
	sess.demuxer = dmx

	var audioInfo, videoInfo *StreamInfo
	for _, info := range dmx.Streams() {
		switch {
		case info.Kind == KindAudio && audioInfo == nil:
			audioInfo = &info
		case info.Kind == KindVideo && videoInfo == nil:
			videoInfo = &info
		}
	}
	if audioInfo == nil && videoInfo == nil {
		return media.NewError(media.KindStreamProbe, "no audio or video stream found", nil)
	}

	if videoInfo != nil {
		dec, err := r.comps.VideoDecoder(*videoInfo, r.cfg.VideoSize)
		if err != nil {
			return media.NewError(media.KindDecoderOpen, "unable to open video decoder", err)
		}
		sess.videoDec = dec
		sess.videoIdx = videoInfo.Index
		r.hasVideo.Store(true)
	}

	if audioInfo != nil {
		dec, err := r.comps.AudioDecoder(*audioInfo)
		if err != nil {
			return media.NewError(media.KindDecoderOpen, "unable to open audio decoder", err)
		}
		r.player.SetFormat(dec.Format())
		if err := r.player.Start(); err != nil {
			_ = dec.Close()
			if sess.videoDec == nil {
				return err
			}
			r.report(err)
			r.logger.Warn("Continuing without audio", "error", err)
			return nil
		}
		// A new run always starts unmuted.
		r.player.Resume()
		sess.audioDec = dec
		sess.audioIdx = audioInfo.Index
		r.hasAudio.Store(true)
	}
	return nil
}

func (r *Reader) loop(ctx context.Context, sess *session) error {
	started := r.now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		pkt, err := sess.demuxer.ReadPacket(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return media.NewError(media.KindSourceOpen, "read failed", err)
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		switch pkt.StreamIndex {
		case sess.audioIdx:
			metrics.IncReceivedPackets(KindAudio.String())
			r.handleAudio(sess.audioDec, pkt, r.now().Sub(started))
		case sess.videoIdx:
			metrics.IncReceivedPackets(KindVideo.String())
			r.handleVideo(sess.videoDec, pkt)
		default:
			continue
		}

		r.position.Store(int64(pkt.PTS))
		if sess.audioDec != nil {
			r.player.SetStreamTime(pkt.PTS)
		}
	}
}

func (r *Reader) handleAudio(dec AudioDecoder, pkt Packet, elapsed time.Duration) {
	pcm, err := dec.Decode(pkt)
	if err != nil {
		r.logger.Debug("Audio decode failed", "pts", pkt.PTS, "error", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	if pkt.PTS < elapsed-r.cfg.LatenessBound {
		metrics.IncLateAudioPackets()
		return
	}
	r.player.WriteData(pkt.PTS, pcm)
}

func (r *Reader) handleVideo(dec VideoDecoder, pkt Packet) {
	frames, err := dec.Decode(pkt)
	if err != nil {
		r.logger.Debug("Video decode failed", "pts", pkt.PTS, "error", err)
	}
	for _, f := range frames {
		metrics.IncDecodedFrames()
		r.lastFrame.Store(&f)
		r.publishFrame(f)
	}
}

func (r *Reader) publishFrame(f media.Frame) {
	if h := r.onFrame.Load(); h != nil && *h != nil {
		(*h)(f)
	}
	r.bus.Publish(events.FrameAvailableEvent{Source: "receiver", Image: f.Image, PTSMs: f.PTS.Milliseconds()})
}

func (r *Reader) fail(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	r.logger.Error("Receive run failed", "error", err)
	r.report(err)
}

func (r *Reader) report(err error) {
	kind := "UNKNOWN"
	var me *media.Error
	if errors.As(err, &me) {
		kind = string(me.Kind)
	}
	r.bus.Publish(events.ReceiverErrorEvent{Kind: kind, Message: err.Error(), Timestamp: timestamp()})
}

func (r *Reader) publishState(running bool, url string) {
	r.bus.Publish(events.ReceiverStateChangedEvent{Running: running, URL: url, Timestamp: timestamp()})
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
