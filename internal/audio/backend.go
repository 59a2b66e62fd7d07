// Package audio drives native capture and playback devices. A Backend opens
// callback-driven device streams; Grabber turns capture callbacks into
// timestamped PCM chunks and Player stages decoded PCM for a device that
// pulls it on its own thread.
package audio

import (
	"errors"

	"github.com/smazurov/avsync/internal/media"
)

// Direction selects capture or playback.
type Direction int

// Stream directions.
const (
	Capture Direction = iota + 1
	Playback
)

func (d Direction) String() string {
	switch d {
	case Capture:
		return "capture"
	case Playback:
		return "playback"
	default:
		return "unknown"
	}
}

// ErrBackendUnavailable is returned by backends that are not compiled in.
var ErrBackendUnavailable = errors.New("audio backend unavailable")

// DataHandler is invoked by the device on a thread it owns, one call at a
// time. For capture streams in holds the hardware buffer and out is nil. For
// playback streams out must be filled completely and in is nil. Neither slice
// may be retained after the call returns.
type DataHandler func(out, in []byte)

// StreamConfig describes a native stream to open.
type StreamConfig struct {
	Direction    Direction
	DeviceIndex  int
	Format       media.AudioFormat
	BufferFrames int
}

// Stream is an open native device stream. Stop pauses delivery without
// releasing the device; Close releases it.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend enumerates devices and opens native streams.
type Backend interface {
	Devices(dir Direction) ([]media.Device, error)
	DefaultDevice(dir Direction) (int, error)
	Open(cfg StreamConfig, handler DataHandler) (Stream, error)
}

// findDevice returns the enumerated device with the given index.
func findDevice(backend Backend, dir Direction, index int) (media.Device, error) {
	if index < 0 {
		return media.Device{}, media.NewError(media.KindDeviceNotFound, "device index must not be negative", nil)
	}
	devices, err := backend.Devices(dir)
	if err != nil {
		return media.Device{}, media.NewError(media.KindDeviceNotFound, "unable to enumerate "+dir.String()+" devices", err)
	}
	for _, d := range devices {
		if d.Index == index {
			return d, nil
		}
	}
	return media.Device{}, media.NewError(media.KindDeviceNotFound, "device to be opened was not found", nil)
}
