package audio

import (
	"fmt"
	"io"

	"github.com/smazurov/avsync/internal/logging"
)

// Backend names accepted by NewBackend.
const (
	BackendMalgo = "malgo"
	BackendOto   = "oto"
)

// ClosableBackend is a Backend that holds process resources.
type ClosableBackend interface {
	Backend
	io.Closer
}

// NewBackend returns the named backend.
func NewBackend(name string, logger logging.Logger) (ClosableBackend, error) {
	switch name {
	case "", BackendMalgo:
		b, err := NewMalgoBackend(logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendOto:
		return NewOtoBackend(logger), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", name)
	}
}
