package audio

import (
	"time"

	"github.com/smazurov/avsync/internal/media"
)

type segment struct {
	pts  time.Duration
	data []byte
}

// stagedBuffer is a FIFO of PCM segments tagged with the presentation time of
// their first frame. It is not safe for concurrent use; Player guards it.
type stagedBuffer struct {
	format   media.AudioFormat
	segments []segment
	size     int
	max      int
}

func newStagedBuffer(format media.AudioFormat, maxBytes int) *stagedBuffer {
	if bpf := format.BytesPerFrame(); bpf > 0 && maxBytes > 0 {
		maxBytes -= maxBytes % bpf
		if maxBytes == 0 {
			maxBytes = bpf
		}
	}
	return &stagedBuffer{format: format, max: maxBytes}
}

func (b *stagedBuffer) len() int {
	return b.size
}

// write appends data and returns the number of bytes dropped from the head
// to stay within the bound.
func (b *stagedBuffer) write(pts time.Duration, data []byte) int {
	if len(data) == 0 {
		return 0
	}
	dropped := 0
	if b.max > 0 && len(data) >= b.max {
		dropped = b.size + len(data) - b.max
		b.clear()
		cut := len(data) - b.max
		pts += b.format.DurationOf(cut)
		data = data[cut:]
	} else if b.max > 0 && b.size+len(data) > b.max {
		excess := b.size + len(data) - b.max
		if bpf := b.format.BytesPerFrame(); bpf > 0 && excess%bpf != 0 {
			excess += bpf - excess%bpf
		}
		if excess > b.size {
			excess = b.size
		}
		b.discard(excess)
		dropped = excess
	}

	owned := make([]byte, len(data))
	copy(owned, data)
	b.segments = append(b.segments, segment{pts: pts, data: owned})
	b.size += len(owned)
	return dropped
}

// headPTS returns the presentation time of the next byte to be read.
func (b *stagedBuffer) headPTS() (time.Duration, bool) {
	if len(b.segments) == 0 {
		return 0, false
	}
	return b.segments[0].pts, true
}

// read removes and returns exactly n bytes. The caller ensures len() >= n.
func (b *stagedBuffer) read(n int) []byte {
	out := make([]byte, n)
	copied := 0
	for copied < n {
		head := &b.segments[0]
		c := copy(out[copied:], head.data)
		copied += c
		b.consumeHead(c)
	}
	return out
}

func (b *stagedBuffer) readAll() []byte {
	if b.size == 0 {
		return nil
	}
	return b.read(b.size)
}

// discard drops n bytes from the head.
func (b *stagedBuffer) discard(n int) {
	for n > 0 && len(b.segments) > 0 {
		c := min(n, len(b.segments[0].data))
		b.consumeHead(c)
		n -= c
	}
}

func (b *stagedBuffer) consumeHead(n int) {
	head := &b.segments[0]
	b.size -= n
	if n >= len(head.data) {
		b.segments[0] = segment{}
		b.segments = b.segments[1:]
		return
	}
	head.data = head.data[n:]
	head.pts += b.format.DurationOf(n)
}

func (b *stagedBuffer) clear() {
	b.segments = nil
	b.size = 0
}
