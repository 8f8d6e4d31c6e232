package timebase

import (
	"math"
	"time"

	"k8s.io/utils/clock"
)

// HostClock is a monotonic hardware tick counter, the common clock for
// pacing decisions.
type HostClock interface {
	HostTicks() uint64
	TicksPerSecond() uint64
}

// SystemClock is a HostClock counting nanoseconds since its creation.
type SystemClock struct {
	clock clock.PassiveClock
	epoch time.Time
}

// Create a SystemClock on top of c. A nil c uses the real wall clock, whose
// Since readings are monotonic.
func NewSystemClock(c clock.PassiveClock) *SystemClock {
	if c == nil {
		c = clock.RealClock{}
	}
	return &SystemClock{
		clock: c,
		epoch: c.Now(),
	}
}

func (c *SystemClock) HostTicks() uint64 {
	elapsed := c.clock.Since(c.epoch)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed)
}

func (c *SystemClock) TicksPerSecond() uint64 {
	return uint64(time.Second)
}

// Convert a duration to a tick count of clock c.
func TicksFromDuration(c HostClock, d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(math.Round(d.Seconds() * float64(c.TicksPerSecond())))
}

// Convert a tick count of clock c to a duration.
func DurationFromTicks(c HostClock, ticks uint64) time.Duration {
	return time.Duration(math.Round(float64(ticks) / float64(c.TicksPerSecond()) * float64(time.Second)))
}
