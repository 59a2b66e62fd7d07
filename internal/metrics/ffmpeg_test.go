package metrics

import (
	"sync"
	"testing"
)

func TestFFmpegMetricsCache(t *testing.T) {
	pipeline := "sender"

	// Clean state
	DeleteFFmpegMetrics(pipeline)

	// Initially should return nil
	if m := GetFFmpegMetrics(pipeline); m != nil {
		t.Error("expected nil for unknown pipeline")
	}

	// Set metrics
	SetFFmpegFPS(pipeline, 30.0)
	SetFFmpegDroppedFrames(pipeline, 5)
	SetFFmpegDuplicateFrames(pipeline, 2)
	SetFFmpegSpeed(pipeline, 1.5)

	// Verify cached values
	m := GetFFmpegMetrics(pipeline)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.FPS != 30.0 {
		t.Errorf("FPS = %v, want 30.0", m.FPS)
	}
	if m.DroppedFrames != 5 {
		t.Errorf("DroppedFrames = %v, want 5", m.DroppedFrames)
	}
	if m.DuplicateFrames != 2 {
		t.Errorf("DuplicateFrames = %v, want 2", m.DuplicateFrames)
	}
	if m.Speed != 1.5 {
		t.Errorf("Speed = %v, want 1.5", m.Speed)
	}

	// Verify returned copy is independent
	m.FPS = 999
	m2 := GetFFmpegMetrics(pipeline)
	if m2.FPS != 30.0 {
		t.Errorf("cache was modified, FPS = %v, want 30.0", m2.FPS)
	}

	// Clean up
	DeleteFFmpegMetrics(pipeline)
	if deleted := GetFFmpegMetrics(pipeline); deleted != nil {
		t.Error("expected nil after delete")
	}
}

func TestFFmpegMetricsConcurrency(t *testing.T) {
	pipeline := "concurrent"
	DeleteFFmpegMetrics(pipeline)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(val float64) {
			defer wg.Done()
			SetFFmpegFPS(pipeline, val)
			SetFFmpegDroppedFrames(pipeline, val)
			_ = GetFFmpegMetrics(pipeline)
		}(float64(i))
	}
	wg.Wait()

	// Should not panic, final value is indeterminate
	m := GetFFmpegMetrics(pipeline)
	if m == nil {
		t.Error("expected non-nil metrics after concurrent access")
	}

	DeleteFFmpegMetrics(pipeline)
}
