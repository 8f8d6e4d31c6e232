package audioplayer

import (
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
)

var (
	// Every buffer is queued on the device. Nothing was changed; drop the
	// frame or retry after the device consumes a buffer.
	ErrNoFreeSlot = errkind.New(errkind.Transient, "no free audio buffer")

	ErrAllocationFailed = errkind.New(errkind.Configuration, "could not allocate audio buffers")
	ErrInvalidFormat    = errkind.New(errkind.Configuration, "invalid audio format")
	ErrInvalidOptions   = errkind.New(errkind.Configuration, "invalid audio player options")
	ErrDeviceFormat     = errkind.New(errkind.Configuration, "audio device rejected format")

	ErrEmptyFrame      = errkind.New(errkind.Transient, "audio frame has no samples")
	ErrMisalignedFrame = errkind.New(errkind.Transient, "audio frame is not a whole number of sample frames")
	ErrFrameTooLarge   = errkind.New(errkind.Transient, "audio frame is larger than a buffer")

	ErrDisposed = errkind.New(errkind.Transient, "audio player has been disposed")
)
