// Package display provides a software presentation surface for the video
// pacer: a one-deep compositor queue in front of the image on screen.
package display

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/videopacer"
)

// Status codes reported in errkind.DeviceError by Surface.
const (
	StatusSurfaceClosed int32 = -1
	StatusBadFrame      int32 = -2
)

var (
	errSurfaceClosed = errors.New("surface is closed")
	errBadFrame      = errors.New("frame does not match its dimensions")
)

type Stats struct {
	// Frames that reached the screen
	Displayed uint64

	// Frames accepted with HintDisplayImmediately
	Immediate uint64

	// Frames accepted with HintDoNotDisplay, never shown
	Skipped uint64

	// Frames discarded from the compositor queue by FlushPending
	Flushed uint64

	Flushes uint64
}

// Surface is a videopacer.Sink that simulates a compositor.
//
// An accepted frame waits in the compositor queue for compositeTime before
// it is on screen, and the surface reports itself not ready while a frame
// is waiting. Time is measured on the given host clock.
type Surface struct {
	logger *slog.Logger
	uuid   uuid.UUID

	clock          timebase.HostClock
	compositeTicks uint64

	mu          sync.Mutex
	queued      *frame.Frame
	busyUntil   uint64
	onScreen    frame.Frame
	hasOnScreen bool
	closed      bool
	stats       Stats
}

// Create a Surface that takes compositeTime to put an accepted frame on
// screen. A zero compositeTime shows frames as soon as they are accepted.
func NewSurface(clock timebase.HostClock, compositeTime time.Duration) *Surface {
	id := uuid.New()
	return &Surface{
		logger: slog.Default().With(
			"surface uuid", id,
		),
		uuid:           id,
		clock:          clock,
		compositeTicks: timebase.TicksFromDuration(clock, compositeTime),
	}
}

// --------------------------------------------------------------------------------
// videopacer.Sink Interface

func (s *Surface) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.compositeLocked()
	return !s.closed && s.queued == nil
}

func (s *Surface) Accept(f frame.Frame, hint videopacer.Hint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &errkind.DeviceError{Op: "present", Code: StatusSurfaceClosed, Err: errSurfaceClosed}
	}
	if size := f.PixelFormat.FrameSize(f.Width, f.Height); size > 0 && len(f.Data) < size {
		return &errkind.DeviceError{
			Op:   "present",
			Code: StatusBadFrame,
			Err:  fmt.Errorf("%w: %d bytes for %dx%d %s", errBadFrame, len(f.Data), f.Width, f.Height, f.PixelFormat),
		}
	}

	if hint == videopacer.HintDoNotDisplay {
		s.stats.Skipped++
		return nil
	}
	if hint == videopacer.HintDisplayImmediately {
		s.stats.Immediate++
	}

	s.compositeLocked()
	if s.queued != nil {
		// Replaced before it reached the screen
		s.stats.Flushed++
	}
	s.queued = &f
	s.busyUntil = s.clock.HostTicks()
	// A late frame skips the compositor's pacing
	if hint != videopacer.HintDisplayImmediately {
		s.busyUntil += s.compositeTicks
	}
	s.compositeLocked()
	return nil
}

func (s *Surface) FlushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.compositeLocked()
	s.stats.Flushes++
	if s.queued != nil {
		s.queued = nil
		s.stats.Flushed++
		s.logger.Debug("flushed frame waiting for composition")
	}
}

// --------------------------------------------------------------------------------

// Move the queued frame on screen once its composition time has passed.
func (s *Surface) compositeLocked() {
	if s.queued == nil || s.clock.HostTicks() < s.busyUntil {
		return
	}
	s.onScreen = *s.queued
	s.hasOnScreen = true
	s.queued = nil
	s.stats.Displayed++
}

// OnScreen returns the frame currently displayed.
func (s *Surface) OnScreen() (frame.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.compositeLocked()
	return s.onScreen, s.hasOnScreen
}

func (s *Surface) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.compositeLocked()
	return s.stats
}

// Close the surface. Later frames are rejected with a device error.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.queued = nil
}
