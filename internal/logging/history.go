package logging

import (
	"sync"
	"time"
)

// Entry is one log record kept in History.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// History keeps the most recent log entries in a fixed-size ring.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewHistory creates a history holding up to size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{entries: make([]Entry, size)}
}

// Add records an entry, overwriting the oldest one when full.
func (h *History) Add(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = e
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Recent returns up to n entries, oldest first. n <= 0 returns all of them.
func (h *History) Recent(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ordered []Entry
	if h.full {
		ordered = append(ordered, h.entries[h.next:]...)
	}
	ordered = append(ordered, h.entries[:h.next]...)

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
