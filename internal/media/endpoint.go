package media

import (
	"image"
	"time"
)

// State is the lifecycle state of a capture or playback endpoint.
type State string

// Endpoint states.
const (
	StateStopped   State = "stopped"
	StateActive    State = "active"
	StateSuspended State = "suspended"
)

// Capability tells which direction and media kind an endpoint serves.
type Capability int

// Endpoint capabilities.
const (
	CapAudioInput Capability = iota + 1
	CapAudioOutput
	CapVideoInput
)

func (c Capability) String() string {
	switch c {
	case CapAudioInput:
		return "audio_input"
	case CapAudioOutput:
		return "audio_output"
	case CapVideoInput:
		return "video_input"
	default:
		return "unknown"
	}
}

// Device is one enumerated hardware endpoint.
type Device struct {
	Index     int    `json:"index" example:"0" doc:"Device index used for selection"`
	Name      string `json:"name" example:"Built-in Microphone" doc:"Human readable device name"`
	IsDefault bool   `json:"is_default" doc:"Whether the OS reports this as the default device"`
}

// Endpoint is the state machine shared by every capture and playback
// endpoint. Start, Suspend and Resume are no-ops outside their valid source
// state. Failures are recorded and can be read back with LastError.
type Endpoint interface {
	Capability() Capability
	Start() error
	Stop()
	Suspend()
	Resume()
	State() State
	LastError() error
}

// Frame is a decoded or captured video frame. A nil Image is the "no frame"
// sentinel published when a stream ends.
type Frame struct {
	Image image.Image
	PTS   time.Duration
}

// FrameHandler receives frames on the producer's goroutine.
type FrameHandler func(Frame)

// VideoInput is an image capture source.
type VideoInput interface {
	Endpoint
	SetDeviceIndex(index int)
	DeviceIndex() int
	AvailableDevices() ([]Device, error)
	MaximumFrameSize(deviceIndex int) (image.Point, error)
	SetFrameHandler(h FrameHandler)
}
