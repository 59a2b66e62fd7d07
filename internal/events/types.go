package events

import "image"

// Event type constants for kelindar/event.
const (
	TypeEndpointStateChanged uint32 = iota + 1
	TypeSenderStateChanged
	TypeSenderError
	TypeReceiverStateChanged
	TypeReceiverError
	TypeFrameAvailable
	TypeProcessExited
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// EndpointStateChangedEvent is published when an audio or video endpoint
// changes state.
type EndpointStateChangedEvent struct {
	Capability string `json:"capability" example:"audio_input" doc:"Endpoint capability"`
	State      string `json:"state" example:"active" doc:"New state: stopped, active or suspended"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for EndpointStateChangedEvent.
func (e EndpointStateChangedEvent) Type() uint32 { return TypeEndpointStateChanged }

// SenderStateChangedEvent is published when the capture/encode pipeline
// starts, stops, pauses or resumes.
type SenderStateChangedEvent struct {
	State     string `json:"state" example:"active" doc:"Sender state"`
	URL       string `json:"url" example:"rtmp://localhost/live/cam" doc:"Destination URL"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SenderStateChangedEvent.
func (e SenderStateChangedEvent) Type() uint32 { return TypeSenderStateChanged }

// SenderErrorEvent reports a failure inside the sender pipeline.
type SenderErrorEvent struct {
	Kind      string `json:"kind" example:"DEVICE_OPEN" doc:"Error kind"`
	Message   string `json:"message" doc:"Error message"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SenderErrorEvent.
func (e SenderErrorEvent) Type() uint32 { return TypeSenderError }

// ReceiverStateChangedEvent is published when the receive loop starts or ends.
type ReceiverStateChangedEvent struct {
	Running   bool   `json:"running" doc:"Whether the receive loop is running"`
	URL       string `json:"url" example:"rtsp://localhost:8554/cam" doc:"Source URL"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ReceiverStateChangedEvent.
func (e ReceiverStateChangedEvent) Type() uint32 { return TypeReceiverStateChanged }

// ReceiverErrorEvent reports a failure opening or decoding the source.
type ReceiverErrorEvent struct {
	Kind      string `json:"kind" example:"STREAM_PROBE" doc:"Error kind"`
	Message   string `json:"message" doc:"Error message"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ReceiverErrorEvent.
func (e ReceiverErrorEvent) Type() uint32 { return TypeReceiverError }

// FrameAvailableEvent carries a decoded or captured video frame. A nil Image
// signals that the producing stream ended.
type FrameAvailableEvent struct {
	Source string      `json:"source"`
	Image  image.Image `json:"-"`
	PTSMs  int64       `json:"pts_ms"`
}

// Type returns the event type identifier for FrameAvailableEvent.
func (e FrameAvailableEvent) Type() uint32 { return TypeFrameAvailable }

// ProcessExitedEvent is published when an ffmpeg helper exits unexpectedly.
type ProcessExitedEvent struct {
	Name      string `json:"name" example:"encoder" doc:"Process role"`
	Error     string `json:"error,omitempty" doc:"Exit error"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessExitedEvent.
func (e ProcessExitedEvent) Type() uint32 { return TypeProcessExited }
