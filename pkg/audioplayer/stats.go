package audioplayer

import "sync/atomic"

type Stats struct {
	// Frames accepted by Enqueue
	Enqueued uint64

	// Buffers, including silence, the device has finished playing
	Consumed uint64

	// Times the queue ran dry while running and was padded with silence
	Underruns uint64

	NoFreeSlot uint64

	// Frames rejected for their size or alignment
	Rejected uint64

	// Consumed callbacks for buffers invalidated by Stop or Reset
	Stale uint64

	DeviceErrors uint64
}

type counters struct {
	enqueued     atomic.Uint64
	consumed     atomic.Uint64
	underruns    atomic.Uint64
	noFreeSlot   atomic.Uint64
	rejected     atomic.Uint64
	stale        atomic.Uint64
	deviceErrors atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Enqueued:     c.enqueued.Load(),
		Consumed:     c.consumed.Load(),
		Underruns:    c.underruns.Load(),
		NoFreeSlot:   c.noFreeSlot.Load(),
		Rejected:     c.rejected.Load(),
		Stale:        c.stale.Load(),
		DeviceErrors: c.deviceErrors.Load(),
	}
}
