package videopacer

import (
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

type TickOutcome int

const (
	// No frame has been submitted since the last presentation.
	TickNothingPending TickOutcome = iota

	// The sink was busy; the pending frame was left in the slot.
	TickSinkNotReady

	// The pending frame was handed to the sink.
	TickPresented

	// The sink rejected the frame; the pacer has flushed itself.
	TickSinkFailed

	// The pacer has been closed.
	TickClosed
)

func (o TickOutcome) String() string {
	switch o {
	case TickNothingPending:
		return "nothing pending"
	case TickSinkNotReady:
		return "sink not ready"
	case TickPresented:
		return "presented"
	case TickSinkFailed:
		return "sink failed"
	case TickClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TickResult describes what a single refresh tick did.
type TickResult struct {
	Outcome TickOutcome

	// Set when Outcome is TickPresented or TickSinkFailed
	Hint Hint
	PTS  frame.Time

	// The presented frame did not follow on from the frame before it
	Gap bool

	// Host time at which the frame was handed to the sink
	DeliveredAt uint64

	// The sink error, when Outcome is TickSinkFailed
	Err error
}

// Submission describes what a single Submit did.
type Submission struct {
	// An unpresented frame was overwritten (and so dropped)
	Replaced bool

	// The frame did not start where the previous one ended
	Discontinuity bool

	// The pacer is closed and the frame was ignored
	Ignored bool
}
