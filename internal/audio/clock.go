package audio

import (
	"sync"
	"time"
)

// streamClock measures stream time by counting frames the device has
// delivered or consumed, so it follows the device clock rather than the
// system clock. It can be re-based to an external presentation time.
type streamClock struct {
	mu            sync.Mutex
	sampleRate    int
	bytesPerFrame int
	base          time.Duration
	frames        int64
}

func newStreamClock(sampleRate int) *streamClock {
	return &streamClock{sampleRate: sampleRate}
}

func (c *streamClock) advance(frames int) {
	c.mu.Lock()
	c.frames += int64(frames)
	c.mu.Unlock()
}

func (c *streamClock) now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *streamClock) nowLocked() time.Duration {
	if c.sampleRate <= 0 {
		return c.base
	}
	return c.base + time.Duration(c.frames*int64(time.Second)/int64(c.sampleRate))
}

// set re-bases the clock so that now() returns t.
func (c *streamClock) set(t time.Duration) {
	c.mu.Lock()
	c.base = t
	c.frames = 0
	c.mu.Unlock()
}
