package media

import "fmt"

// ErrorKind classifies failures reported by endpoints and orchestrators.
type ErrorKind string

// Error kinds.
const (
	KindDeviceNotFound ErrorKind = "DEVICE_NOT_FOUND"
	KindDeviceOpen     ErrorKind = "DEVICE_OPEN"
	KindInvalidFormat  ErrorKind = "INVALID_FORMAT"
	KindEncoderOpen    ErrorKind = "ENCODER_OPEN"
	KindSourceOpen     ErrorKind = "SOURCE_OPEN"
	KindStreamProbe    ErrorKind = "STREAM_PROBE"
	KindDecoderOpen    ErrorKind = "DECODER_OPEN"
)

// Sentinels for errors.Is comparisons against an *Error of the same kind.
var (
	ErrDeviceNotFound = &Error{Kind: KindDeviceNotFound}
	ErrDeviceOpen     = &Error{Kind: KindDeviceOpen}
	ErrInvalidFormat  = &Error{Kind: KindInvalidFormat}
	ErrEncoderOpen    = &Error{Kind: KindEncoderOpen}
	ErrSourceOpen     = &Error{Kind: KindSourceOpen}
	ErrStreamProbe    = &Error{Kind: KindStreamProbe}
	ErrDecoderOpen    = &Error{Kind: KindDecoderOpen}
)

// Error is a domain error carrying a kind, a human readable message and the
// underlying native error when there is one.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}
