// Package frame defines the media frames handed from a capture source to the
// pacing engine, and the owned copies the pacers keep of them.
package frame

// PixelFormat describes the layout of a raw video frame.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatBGRA32
	PixelFormatNV12
	PixelFormatI420
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatBGRA32:
		return "BGRA32"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatI420:
		return "I420"
	default:
		return "Unknown"
	}
}

// Number of bytes a frame of the given dimensions occupies in this format.
// Returns 0 for unknown formats.
func (p PixelFormat) FrameSize(width, height int) int {
	switch p {
	case PixelFormatBGRA32:
		return width * height * 4
	case PixelFormatNV12, PixelFormatI420:
		return width*height + 2*((width+1)/2)*((height+1)/2)
	default:
		return 0
	}
}

// A Frame is a single video picture or a run of audio samples, already
// decoded, as delivered by a capture source.
//
// Data handed in by a capture callback belongs to the capture hardware pool
// and is only valid until the callback returns. Anything that needs to keep a
// frame beyond that point must take an owned copy with Own.
type Frame struct {
	// Raw pixel bytes (video) or interleaved LPCM bytes (audio)
	Data []byte

	PTS      Time
	Duration Time

	// Video attributes, zero for audio frames
	Width       int
	Height      int
	PixelFormat PixelFormat
}

// End returns the presentation time immediately after this frame, PTS+Duration.
func (f Frame) End() Time {
	return f.PTS.Add(f.Duration)
}

// Clone returns a deep copy of the frame, sharing no memory with f.
func (f Frame) Clone() Frame {
	clone := f
	if f.Data != nil {
		clone.Data = make([]byte, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return clone
}
