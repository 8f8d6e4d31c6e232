package audiodevice

import (
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
)

// Format of interleaved LPCM audio, as negotiated with the capture device.
type Format struct {
	SampleRate  int
	NumChannels int
	BitDepth    int
}

// Bytes in one sample of one channel.
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// Bytes in one frame, i.e. one sample for every channel.
func (f Format) BytesPerFrame() int {
	return f.NumChannels * f.BytesPerSample()
}

// Number of whole frames held by a buffer of n bytes.
func (f Format) FramesIn(n int) int {
	bytesPerFrame := f.BytesPerFrame()
	if bytesPerFrame <= 0 {
		return 0
	}
	return n / bytesPerFrame
}

// Buffer is a unit of audio handed to an OutputDevice. The device hands the
// same Buffer back through its consumed callback once it has been played.
type Buffer interface {
	Bytes() []byte
}

// Interface for audio output devices, e.g. speakers
//
// An output device pulls buffers from its queue at its own (hardware) rate,
// and returns each one through the consumed callback given to Open.
// The callback runs on the device's own goroutine. A device must never call
// it synchronously from Enqueue, as callers typically enqueue while holding
// the lock the callback takes.
//
// Buffers still queued when Stop or Reset is called are discarded without a
// callback.
type OutputDevice interface {
	timebase.HostClock

	// Open the device for the given format. A device that cannot play the
	// format returns an error.
	Open(format Format, consumed func(Buffer)) error

	// Append buf to the playback queue. The device must not modify the
	// buffer's contents.
	Enqueue(buf Buffer) error

	Start() error

	// Stop pulling buffers, keeping the queue.
	Pause() error

	// Stop pulling buffers and discard the queue.
	Stop() error

	// Discard the queue without changing the running state.
	Reset() error

	// Set the output gain in [0, 1].
	SetVolume(volume float32) error

	// Release the device. Close is idempotent.
	Close() error
}

// Interface for audio source devices, e.g. microphones
//
// Raw audio data (as PCMFrames) arrives on the stream returned by GetStream,
// which is closed when the source is exhausted or closed.
type SourceDevice interface {
	GetStream() <-chan frame.PCMFrame

	// Meaningfully close the SourceDevice, including any cleanup of
	// memory and closing of channels.
	Close()

	Format() Format
}
