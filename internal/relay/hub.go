// Package relay is a local RTSP relay: the sender's encoder publishes to it
// with ANNOUNCE/RECORD and receivers pull the same path with DESCRIBE/PLAY.
package relay

import (
	"errors"
	"sort"
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/rtsp"

	"github.com/smazurov/avsync/internal/logging"
)

// ErrStreamNotFound is returned when no producer publishes the requested path.
var ErrStreamNotFound = errors.New("stream not found")

// producer is the part of *rtsp.Conn the hub needs from a publisher.
type producer interface {
	Stop() error
}

// Hub maps stream paths to their current producer.
type Hub struct {
	mu        sync.RWMutex
	producers map[string]producer
	logger    logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		producers: make(map[string]producer),
		logger:    logger,
	}
}

// AddProducer registers conn as the publisher of streamID, closing any
// previous publisher of the same path.
func (h *Hub) AddProducer(streamID string, conn producer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.producers[streamID]; ok && existing != conn {
		h.logger.Info("Replacing existing producer", "stream_id", streamID)
		_ = existing.Stop()
	}
	h.producers[streamID] = conn
	h.logger.Info("Producer added", "stream_id", streamID)
}

// RemoveProducer drops conn if it is still the publisher of streamID.
func (h *Hub) RemoveProducer(streamID string, conn producer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.producers[streamID]; ok && current == conn {
		_ = current.Stop()
		delete(h.producers, streamID)
		h.logger.Info("Producer removed", "stream_id", streamID)
	}
}

// HasProducer reports whether streamID is being published.
func (h *Hub) HasProducer(streamID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.producers[streamID]
	return ok
}

// ListStreams returns the published paths in sorted order.
func (h *Hub) ListStreams() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	streams := make([]string, 0, len(h.producers))
	for id := range h.producers {
		streams = append(streams, id)
	}
	sort.Strings(streams)
	return streams
}

// WireConsumer attaches every track of the streamID producer to cons.
func (h *Hub) WireConsumer(streamID string, cons core.Consumer) error {
	h.mu.RLock()
	prod := h.producers[streamID]
	h.mu.RUnlock()

	conn, ok := prod.(*rtsp.Conn)
	if !ok || conn == nil {
		return ErrStreamNotFound
	}

	for _, receiver := range conn.Receivers {
		media := &core.Media{
			Kind:      core.GetKind(receiver.Codec.Name),
			Direction: core.DirectionRecvonly,
			Codecs:    []*core.Codec{receiver.Codec},
		}
		if err := cons.AddTrack(media, receiver.Codec, receiver); err != nil {
			h.logger.Warn("Failed to add track", "stream_id", streamID, "codec", receiver.Codec.Name, "error", err)
		}
	}
	return nil
}

// Stop closes every producer.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.producers {
		_ = conn.Stop()
		delete(h.producers, id)
	}
	h.logger.Info("Relay hub stopped")
}
