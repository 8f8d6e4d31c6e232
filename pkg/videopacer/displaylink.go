package videopacer

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
)

var (
	ErrInvalidRefreshInterval = errors.New("refresh interval must be positive")
)

// TickFunc receives one display refresh. target is the host time by which the
// next image must be on screen and expiry the host time after which it is
// stale.
type TickFunc func(target, expiry uint64)

// DisplayLink is a software stand-in for a display's vertical sync: it calls
// its TickFunc once per refresh interval.
type DisplayLink struct {
	clock    clock.WithTicker
	host     timebase.HostClock
	interval time.Duration
	onTick   TickFunc
}

// Create a DisplayLink ticking every interval on c. Deadlines passed to onTick
// are measured on host, which should be driven by the same clock.
func NewDisplayLink(c clock.WithTicker, host timebase.HostClock, interval time.Duration, onTick TickFunc) (*DisplayLink, error) {
	if interval <= 0 {
		return nil, ErrInvalidRefreshInterval
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &DisplayLink{
		clock:    c,
		host:     host,
		interval: interval,
		onTick:   onTick,
	}, nil
}

// Convenience for a refresh rate in Hz.
func IntervalForRefreshRate(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}

// Run ticks until ctx is done. It always returns nil once ctx ends.
func (d *DisplayLink) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	intervalTicks := timebase.TicksFromDuration(d.host, d.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			target := d.host.HostTicks() + intervalTicks
			d.onTick(target, target+intervalTicks)
		}
	}
}

func (d *DisplayLink) Interval() time.Duration {
	return d.interval
}
