package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/rtsp"
	"github.com/pion/rtp"

	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
)

const packetQueueDepth = 256

// supportedCodecs lists what the receive path can decode, by media kind.
var supportedCodecs = map[string][]string{
	core.KindVideo: {core.CodecH264},
	core.KindAudio: {core.CodecPCMU, core.CodecPCMA, core.CodecPCM},
}

// RTSPDemuxer pulls an RTSP source and turns its RTP tracks into packets.
// Video packets carry whole Annex-B access units.
type RTSPDemuxer struct {
	logger logging.Logger

	conn    *rtsp.Conn
	streams []StreamInfo
	packets chan Packet
	ended   chan struct{}
	closed  chan struct{}

	now        func() time.Time
	origin     time.Time
	originOnce sync.Once

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// NewRTSPDemuxer returns an unopened demuxer.
func NewRTSPDemuxer(logger logging.Logger) *RTSPDemuxer {
	return &RTSPDemuxer{
		logger:  logger,
		packets: make(chan Packet, packetQueueDepth),
		ended:   make(chan struct{}),
		closed:  make(chan struct{}),
		now:     time.Now,
	}
}

// track converts one RTP stream into packets.
type track struct {
	info   StreamInfo
	h264   *h264Assembler
	unwrap tsUnwrapper
}

// Open connects, describes and sets up every supported track, then starts
// playback. The first usable codec of each media section is taken.
func (d *RTSPDemuxer) Open(ctx context.Context, url string) error {
	conn := rtsp.NewClient(url)
	stop := context.AfterFunc(ctx, func() { _ = conn.Stop() })
	defer stop()

	if err := conn.Dial(); err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if err := conn.Describe(); err != nil {
		_ = conn.Stop()
		return fmt.Errorf("describe: %w", err)
	}

	for _, m := range conn.GetMedias() {
		codec := pickCodec(m)
		if codec == nil {
			d.logger.Debug("Skipping unsupported media", "kind", m.Kind)
			continue
		}
		receiver, err := conn.GetTrack(m, codec)
		if err != nil {
			d.logger.Warn("Track setup failed", "codec", codec.Name, "error", err)
			continue
		}

		tr := &track{info: StreamInfo{
			Index:     len(d.streams),
			Kind:      KindAudio,
			Codec:     codec.Name,
			ClockRate: codec.ClockRate,
			Channels:  uint16(codec.Channels),
			FmtpLine:  codec.FmtpLine,
		}}
		if m.Kind == core.KindVideo {
			tr.info.Kind = KindVideo
			tr.h264 = newH264Assembler(codec.FmtpLine)
		}
		d.streams = append(d.streams, tr.info)

		sender := core.NewSender(m, codec)
		sender.Handler = func(p *rtp.Packet) { d.deliver(tr, p) }
		sender.HandleRTP(receiver)
		d.logger.Debug("Track ready", "index", tr.info.Index, "kind", tr.info.Kind, "codec", codec.Name)
	}

	if ctx.Err() != nil {
		_ = conn.Stop()
		return ctx.Err()
	}

	d.conn = conn
	go func() {
		err := conn.Start()
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		close(d.ended)
	}()
	return nil
}

func pickCodec(m *core.Media) *core.Codec {
	names := supportedCodecs[m.Kind]
	for _, codec := range m.Codecs {
		for _, name := range names {
			if codec.Name == name {
				return codec
			}
		}
	}
	return nil
}

// sinceOrigin returns the arrival time of a packet on the timeline shared by
// every track. The origin is the first packet received on any track.
func (d *RTSPDemuxer) sinceOrigin() time.Duration {
	now := d.now()
	d.originOnce.Do(func() { d.origin = now })
	return now.Sub(d.origin)
}

// deliver runs on the connection goroutine. A track's timestamps are anchored
// at the arrival of its first RTP packet, before any access unit is complete,
// so video held back until the first IDR stays on the audio timeline.
func (d *RTSPDemuxer) deliver(tr *track, p *rtp.Packet) {
	if !tr.unwrap.started {
		tr.unwrap.start(p.Timestamp, d.sinceOrigin())
	}
	if tr.h264 == nil {
		payload := make([]byte, len(p.Payload))
		copy(payload, p.Payload)
		d.enqueue(Packet{
			StreamIndex: tr.info.Index,
			Kind:        tr.info.Kind,
			PTS:         tr.unwrap.pts(p.Timestamp, tr.info.ClockRate),
			Payload:     payload,
		})
		return
	}
	for _, au := range tr.h264.push(p) {
		d.enqueue(Packet{
			StreamIndex: tr.info.Index,
			Kind:        tr.info.Kind,
			PTS:         tr.unwrap.pts(au.timestamp, tr.info.ClockRate),
			Payload:     au.data,
		})
	}
}

func (d *RTSPDemuxer) enqueue(pkt Packet) {
	select {
	case d.packets <- pkt:
	case <-d.closed:
	}
}

// Streams implements Demuxer.
func (d *RTSPDemuxer) Streams() []StreamInfo { return d.streams }

// ReadPacket implements Demuxer. It returns io.EOF once the connection has
// ended and every queued packet has been read.
func (d *RTSPDemuxer) ReadPacket(ctx context.Context) (Packet, error) {
	select {
	case pkt := <-d.packets:
		return pkt, nil
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-d.ended:
	}

	select {
	case pkt := <-d.packets:
		return pkt, nil
	default:
	}

	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return Packet{}, io.EOF
	}
	return Packet{}, err
}

// Close implements Demuxer.
func (d *RTSPDemuxer) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closed)
		if d.conn != nil {
			err = d.conn.Stop()
		}
	})
	return err
}

// tsUnwrapper extends 32-bit RTP timestamps and converts them to a
// duration relative to the first packet of the stream, offset by base.
type tsUnwrapper struct {
	started bool
	base    time.Duration
	last    uint32
	ext     int64
}

func (u *tsUnwrapper) start(ts uint32, base time.Duration) {
	u.started = true
	u.base = base
	u.last = ts
	u.ext = 0
}

func (u *tsUnwrapper) pts(ts, clockRate uint32) time.Duration {
	if !u.started {
		u.start(ts, 0)
	}
	u.ext += int64(int32(ts - u.last))
	u.last = ts
	if clockRate == 0 {
		return u.base
	}
	return u.base + time.Duration(u.ext*int64(time.Second)/int64(clockRate))
}

// NewNetworkComponents wires the RTSP demuxer, the PCM audio decoder and the
// ffmpeg video decoder.
func NewNetworkComponents(launcher string, options []ffmpeg.OptionType, logger logging.Logger) Components {
	return Components{
		Demuxer:      func() Demuxer { return NewRTSPDemuxer(logger) },
		AudioDecoder: NewPCMDecoder,
		VideoDecoder: NewFFmpegVideoDecoderFactory(launcher, options, logger),
	}
}
