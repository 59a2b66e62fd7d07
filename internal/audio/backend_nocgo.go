//go:build !cgo

package audio

import (
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
)

// MalgoBackend is unavailable without cgo.
type MalgoBackend struct{}

// NewMalgoBackend always fails without cgo.
func NewMalgoBackend(_ logging.Logger) (*MalgoBackend, error) {
	return nil, ErrBackendUnavailable
}

// Close implements io.Closer.
func (b *MalgoBackend) Close() error { return nil }

// Devices implements Backend.
func (b *MalgoBackend) Devices(Direction) ([]media.Device, error) {
	return nil, ErrBackendUnavailable
}

// DefaultDevice implements Backend.
func (b *MalgoBackend) DefaultDevice(Direction) (int, error) {
	return -1, ErrBackendUnavailable
}

// Open implements Backend.
func (b *MalgoBackend) Open(StreamConfig, DataHandler) (Stream, error) {
	return nil, ErrBackendUnavailable
}

// OtoBackend is unavailable without cgo.
type OtoBackend struct{ MalgoBackend }

// NewOtoBackend returns a backend whose operations all fail without cgo.
func NewOtoBackend(_ logging.Logger) *OtoBackend {
	return &OtoBackend{}
}
