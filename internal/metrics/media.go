package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "avsync"

var endpointStates = []string{"stopped", "active", "suspended"}

var (
	capturedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "captured_bytes_total",
		Help:      "PCM bytes delivered by capture devices",
	}, []string{"device"})

	endpointState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "endpoint",
		Name:      "state",
		Help:      "1 for the current state of each endpoint capability",
	}, []string{"capability", "state"})

	stagedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "staged_bytes",
		Help:      "PCM bytes waiting in the playback buffer",
	})

	stagedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "staged_dropped_bytes_total",
		Help:      "PCM bytes discarded because the playback buffer was full",
	})

	playbackUnderruns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "playback_underruns_total",
		Help:      "Playback callbacks answered with silence",
	})

	lateAudioPackets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "late_audio_packets_total",
		Help:      "Audio packets dropped for arriving behind the playback clock",
	})

	receivedPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "packets_total",
		Help:      "Demuxed packets by stream kind",
	}, []string{"kind"})

	decodedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "video_frames_total",
		Help:      "Video frames decoded and published",
	})

	sentVideoFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "video_frames_total",
		Help:      "Video frames handed to the encoder",
	})

	sentAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "audio_bytes_total",
		Help:      "PCM bytes handed to the encoder",
	})

	mutedAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "muted_audio_bytes_total",
		Help:      "PCM bytes discarded during the startup mute window",
	})

	capturedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "video",
		Name:      "captured_frames_total",
		Help:      "Camera frames delivered to the frame handler",
	})

	warmupBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "video",
		Name:      "warmup_discarded_bytes_total",
		Help:      "Camera output discarded while the sensor settles",
	})
)

// AddCapturedBytes counts PCM delivered by a capture device.
func AddCapturedBytes(deviceIndex, n int) {
	capturedBytes.WithLabelValues(strconv.Itoa(deviceIndex)).Add(float64(n))
}

// SetEndpointState marks state as the current state of the capability.
func SetEndpointState(capability, state string) {
	for _, s := range endpointStates {
		v := 0.0
		if s == state {
			v = 1
		}
		endpointState.WithLabelValues(capability, s).Set(v)
	}
}

// SetStagedBytes sets the playback buffer fill level.
func SetStagedBytes(n int) { stagedBytes.Set(float64(n)) }

// AddStagedBytesDropped counts bytes dropped by the playback bound.
func AddStagedBytesDropped(n int) { stagedDropped.Add(float64(n)) }

// IncPlaybackUnderruns counts a silent playback callback.
func IncPlaybackUnderruns() { playbackUnderruns.Inc() }

// IncLateAudioPackets counts an audio packet dropped for lateness.
func IncLateAudioPackets() { lateAudioPackets.Inc() }

// IncReceivedPackets counts a demuxed packet of the given kind.
func IncReceivedPackets(kind string) { receivedPackets.WithLabelValues(kind).Inc() }

// IncDecodedFrames counts a decoded video frame.
func IncDecodedFrames() { decodedFrames.Inc() }

// IncSentVideoFrames counts a frame handed to the encoder.
func IncSentVideoFrames() { sentVideoFrames.Inc() }

// AddSentAudioBytes counts PCM handed to the encoder.
func AddSentAudioBytes(n int) { sentAudioBytes.Add(float64(n)) }

// AddMutedAudioBytes counts PCM discarded while muted.
func AddMutedAudioBytes(n int) { mutedAudioBytes.Add(float64(n)) }

// IncCapturedFrames counts a camera frame delivered to its handler.
func IncCapturedFrames() { capturedFrames.Inc() }

// AddWarmupBytes counts camera output discarded during warm-up.
func AddWarmupBytes(n int) { warmupBytes.Add(float64(n)) }

// Handler returns the Prometheus HTTP handler for all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
