package videopacer

import "sync/atomic"

// Stats is a snapshot of pacer counters.
type Stats struct {
	Submitted       uint64
	Replaced        uint64
	Presented       uint64
	Late            uint64
	Expired         uint64
	Discontinuities uint64
	SinkNotReady    uint64
	SinkFailures    uint64

	// Host time of the most recent hand-off to the sink, 0 if none
	LastDeliveredAt uint64
}

type counters struct {
	submitted       atomic.Uint64
	replaced        atomic.Uint64
	presented       atomic.Uint64
	late            atomic.Uint64
	expired         atomic.Uint64
	discontinuities atomic.Uint64
	sinkNotReady    atomic.Uint64
	sinkFailures    atomic.Uint64
	lastDeliveredAt atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Submitted:       c.submitted.Load(),
		Replaced:        c.replaced.Load(),
		Presented:       c.presented.Load(),
		Late:            c.late.Load(),
		Expired:         c.expired.Load(),
		Discontinuities: c.discontinuities.Load(),
		SinkNotReady:    c.sinkNotReady.Load(),
		SinkFailures:    c.sinkFailures.Load(),
		LastDeliveredAt: c.lastDeliveredAt.Load(),
	}
}
