// Package timebase anchors media time (the presentation timestamps of a
// captured stream) to host time (a monotonic hardware tick counter), so a
// pacer can tell where a frame falls relative to a host-time deadline.
package timebase

import (
	"math"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

const (
	RatePaused  = 0.0
	RateRunning = 1.0
)

// Timebase maps host ticks to media seconds and back.
//
// A Timebase is created paused. Reset with an origin frame anchors it and
// sets it running at real time; Reset(nil) pauses it again. The Timebase has
// no locking of its own: the pacer that owns it serializes every call.
type Timebase struct {
	clock HostClock

	baseHostTicks          uint64
	baseMediaOffsetSeconds float64
	rate                   float64
	anchored               bool
}

func New(clock HostClock) *Timebase {
	return &Timebase{
		clock: clock,
		rate:  RatePaused,
	}
}

// Reset anchors the timebase to origin, or pauses it when origin is nil.
//
// With an origin the current host time becomes the moment origin.PTS is
// presented, and the rate becomes 1.0.
func (tb *Timebase) Reset(origin *frame.Frame) {
	if origin == nil {
		tb.baseHostTicks = 0
		tb.baseMediaOffsetSeconds = 0
		tb.rate = RatePaused
		tb.anchored = false
		return
	}

	tb.baseHostTicks = tb.clock.HostTicks()
	tb.baseMediaOffsetSeconds = origin.PTS.Seconds()
	tb.rate = RateRunning
	tb.anchored = true
}

// MediaOffset returns the media time, in seconds, presented at host time hostTicks.
//
// The result is only meaningful once a frame has been anchored (see Anchored).
// Host times before the anchor give media times before the origin frame.
func (tb *Timebase) MediaOffset(hostTicks uint64) float64 {
	elapsedTicks := int64(hostTicks - tb.baseHostTicks)
	elapsedSeconds := float64(elapsedTicks) / float64(tb.clock.TicksPerSecond())
	return elapsedSeconds*tb.rate + tb.baseMediaOffsetSeconds
}

// HostTicksFor returns the host time at which mediaOffset seconds is presented.
// Returns 0 while paused, as there is no such time.
func (tb *Timebase) HostTicksFor(mediaOffset float64) uint64 {
	if tb.rate == RatePaused {
		return 0
	}
	elapsedSeconds := (mediaOffset - tb.baseMediaOffsetSeconds) / tb.rate
	elapsedTicks := math.Round(elapsedSeconds * float64(tb.clock.TicksPerSecond()))
	return tb.baseHostTicks + uint64(int64(elapsedTicks))
}

// The current host time of the clock driving this timebase.
func (tb *Timebase) Now() uint64 {
	return tb.clock.HostTicks()
}

func (tb *Timebase) Rate() float64 {
	return tb.rate
}

// Anchored reports whether a frame has been anchored since the last pause.
func (tb *Timebase) Anchored() bool {
	return tb.anchored
}

func (tb *Timebase) BaseHostTicks() uint64 {
	return tb.baseHostTicks
}
