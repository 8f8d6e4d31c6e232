// Package errkind classifies pacing engine errors by how a session owner
// should react to them.
//
//   - Transient: self-healing, drop the current frame and continue.
//   - Configuration: fatal to the component, never retried automatically.
//   - PlatformDevice: opaque status from the OS media stack, reported verbatim,
//     stops the component but never the capture source.
package errkind

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	Transient
	Configuration
	PlatformDevice
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Configuration:
		return "configuration"
	case PlatformDevice:
		return "platform device"
	default:
		return "unknown"
	}
}

type markedError struct {
	kind Kind
	err  error
}

func (e *markedError) Error() string { return e.err.Error() }
func (e *markedError) Unwrap() error { return e.err }

// Mark err with a Kind. The returned error still matches err with errors.Is.
func Mark(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &markedError{kind: kind, err: err}
}

// Shorthand for a new sentinel error of the given kind.
func New(kind Kind, text string) error {
	return Mark(errors.New(text), kind)
}

// Of returns the Kind of the outermost classified error in err's chain.
// A DeviceError anywhere in the chain is a PlatformDevice error.
func Of(err error) Kind {
	if err == nil {
		return Unknown
	}

	var marked *markedError
	if errors.As(err, &marked) {
		return marked.kind
	}
	var deviceErr *DeviceError
	if errors.As(err, &deviceErr) {
		return PlatformDevice
	}
	return Unknown
}

func IsTransient(err error) bool { return Of(err) == Transient }

// DeviceError carries an opaque status code from a platform media device.
// The code is propagated verbatim; nothing in this module interprets it.
type DeviceError struct {
	// The device operation that failed, e.g. "enqueue" or "start"
	Op   string
	Code int32
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device %s failed with status %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("device %s failed with status %d", e.Op, e.Code)
}

func (e *DeviceError) Unwrap() error { return e.Err }
