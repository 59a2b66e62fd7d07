// Package metrics provides Prometheus metrics for audio endpoints, the
// sender and receiver pipelines and the ffmpeg processes they drive.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ffmpegFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "fps",
		Help:      "Current ffmpeg processing FPS",
	}, []string{"pipeline"})

	ffmpegDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped by ffmpeg",
	}, []string{"pipeline"})

	ffmpegDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "duplicate_frames_total",
		Help:      "Frames duplicated by ffmpeg",
	}, []string{"pipeline"})

	ffmpegSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "processing_speed",
		Help:      "FFmpeg processing speed multiplier",
	}, []string{"pipeline"})

	// Local cache for the status API.
	ffmpegCache   = make(map[string]*FFmpegMetrics)
	ffmpegCacheMu sync.RWMutex
)

// FFmpegMetrics holds current metric values for a pipeline.
type FFmpegMetrics struct {
	FPS             float64
	DroppedFrames   float64
	DuplicateFrames float64
	Speed           float64
}

// SetFFmpegFPS sets the current FPS reported for a pipeline.
func SetFFmpegFPS(pipeline string, fps float64) {
	ffmpegFPS.WithLabelValues(pipeline).Set(fps)
	updateCache(pipeline, func(m *FFmpegMetrics) { m.FPS = fps })
}

// SetFFmpegDroppedFrames sets the dropped frames count for a pipeline.
func SetFFmpegDroppedFrames(pipeline string, count float64) {
	ffmpegDroppedFrames.WithLabelValues(pipeline).Set(count)
	updateCache(pipeline, func(m *FFmpegMetrics) { m.DroppedFrames = count })
}

// SetFFmpegDuplicateFrames sets the duplicate frames count for a pipeline.
func SetFFmpegDuplicateFrames(pipeline string, count float64) {
	ffmpegDuplicateFrames.WithLabelValues(pipeline).Set(count)
	updateCache(pipeline, func(m *FFmpegMetrics) { m.DuplicateFrames = count })
}

// SetFFmpegSpeed sets the processing speed for a pipeline.
func SetFFmpegSpeed(pipeline string, speed float64) {
	ffmpegSpeed.WithLabelValues(pipeline).Set(speed)
	updateCache(pipeline, func(m *FFmpegMetrics) { m.Speed = speed })
}

// DeleteFFmpegMetrics removes all metrics for a pipeline.
func DeleteFFmpegMetrics(pipeline string) {
	ffmpegFPS.DeleteLabelValues(pipeline)
	ffmpegDroppedFrames.DeleteLabelValues(pipeline)
	ffmpegDuplicateFrames.DeleteLabelValues(pipeline)
	ffmpegSpeed.DeleteLabelValues(pipeline)

	ffmpegCacheMu.Lock()
	delete(ffmpegCache, pipeline)
	ffmpegCacheMu.Unlock()
}

// GetFFmpegMetrics returns current metric values for a pipeline.
func GetFFmpegMetrics(pipeline string) *FFmpegMetrics {
	ffmpegCacheMu.RLock()
	defer ffmpegCacheMu.RUnlock()
	if m, ok := ffmpegCache[pipeline]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(pipeline string, update func(*FFmpegMetrics)) {
	ffmpegCacheMu.Lock()
	defer ffmpegCacheMu.Unlock()
	m, ok := ffmpegCache[pipeline]
	if !ok {
		m = &FFmpegMetrics{}
		ffmpegCache[pipeline] = m
	}
	update(m)
}
