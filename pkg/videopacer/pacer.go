// Package videopacer decouples an irregular video producer (a capture
// callback) from a regular consumer (a display refresh tick) with a
// deliberately lossy single slot: the newest frame always wins.
//
// Video tolerates a dropped frame far better than the latency or stutter a
// queue would add, so there is no queue. Each Submit overwrites whatever is
// pending, and each refresh tick drains at most one frame.
package videopacer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
)

type State int

const (
	// No frame anchored since creation or the last Flush
	StateIdle State = iota

	// The timebase is anchored to a submitted frame
	StateArmed
)

func (s State) String() string {
	if s == StateArmed {
		return "armed"
	}
	return "idle"
}

type Options struct {
	// Flush the sink's displayed image as soon as a discontinuity in the
	// submitted timestamps is seen, rather than holding a frozen frame across
	// a capture interruption.
	FlushOnDiscontinuity bool

	// If nil, a logger derived from slog.Default is used.
	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		FlushOnDiscontinuity: true,
	}
}

// Pacer holds at most one pending frame for a Sink.
//
// Submit is called by the capture goroutine and OnRefreshTick by the display
// refresh goroutine. The slot is guarded by a mutex that is held only for
// O(1) pointer swaps: the deep copy happens before the lock is taken and
// every Sink call happens after it is released, so the producer never waits
// on the consumer.
type Pacer struct {
	logger *slog.Logger
	uuid   uuid.UUID

	sink                 Sink
	clock                timebase.HostClock
	flushOnDiscontinuity bool

	mu sync.Mutex
	// The single slot. nil when nothing is pending.
	pending *frame.Owned
	// The pending frame (or one it replaced) did not follow on from the
	// previously submitted frame
	pendingGap bool
	// End of the previously submitted frame, for discontinuity detection
	lastEnd    frame.Time
	hasLastEnd bool
	timebase   *timebase.Timebase
	lastErr    error

	// Set under mu, read without it to skip the copy after Close
	closed atomic.Bool

	stats counters
}

// Create a new Pacer presenting to sink, with deadlines measured on clock.
func New(sink Sink, clock timebase.HostClock, options Options) *Pacer {
	id := uuid.New()
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		"video pacer uuid", id,
	)

	return &Pacer{
		logger:               logger,
		uuid:                 id,
		sink:                 sink,
		clock:                clock,
		flushOnDiscontinuity: options.FlushOnDiscontinuity,
		timebase:             timebase.New(clock),
	}
}

// --------------------------------------------------------------------------------
// Producer side

// Submit takes an owned copy of f and makes it the pending frame, dropping
// any frame that was still pending.
//
// The first frame after creation, a Flush, or a discontinuity anchors the
// pacer's timebase. Submit never blocks on the consumer. After Close it is
// a no-op.
func (p *Pacer) Submit(f frame.Frame) Submission {
	if p.closed.Load() {
		return Submission{Ignored: true}
	}
	owned := frame.Own(f)

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		owned.Release()
		return Submission{Ignored: true}
	}

	var result Submission
	p.stats.submitted.Add(1)

	prevEnd, hadPrev := p.lastEnd, p.hasLastEnd
	if hadPrev && !f.PTS.Equal(prevEnd) {
		result.Discontinuity = true
	}

	if p.pending != nil {
		p.pending.Release()
		result.Replaced = true
		p.stats.replaced.Add(1)
	}

	if !p.timebase.Anchored() || result.Discontinuity {
		p.timebase.Reset(&f)
	}

	p.pending = owned
	p.pendingGap = result.Discontinuity || (p.pendingGap && result.Replaced)
	p.lastEnd = f.End()
	p.hasLastEnd = f.PTS.IsValid() && f.Duration.IsValid()
	p.mu.Unlock()

	if result.Discontinuity {
		p.stats.discontinuities.Add(1)
		p.logger.Info(
			"discontinuity in submitted frames",
			"expectedPTS", prevEnd,
			"pts", f.PTS,
		)
		if p.flushOnDiscontinuity {
			p.sink.FlushPending()
		}
	}

	return result
}

// --------------------------------------------------------------------------------
// Consumer side

// OnRefreshTick presents the pending frame, if any, for the refresh whose
// frame must be on screen by target. expiry is the point after which showing
// the frame is pointless, normally one refresh interval after target.
//
// A tick with no new submission since the last presentation is a no-op.
func (p *Pacer) OnRefreshTick(target, expiry uint64) TickResult {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return TickResult{Outcome: TickClosed}
	}
	hasPending := p.pending != nil
	p.mu.Unlock()

	if !hasPending {
		return TickResult{Outcome: TickNothingPending}
	}

	if !p.sink.IsReady() {
		p.stats.sinkNotReady.Add(1)
		p.sink.FlushPending()
		return TickResult{Outcome: TickSinkNotReady}
	}

	p.mu.Lock()
	owned, gap := p.pending, p.pendingGap
	p.pending, p.pendingGap = nil, false
	p.mu.Unlock()

	// Flushed or closed between the two critical sections
	if owned == nil {
		return TickResult{Outcome: TickNothingPending}
	}
	f, err := owned.Take()
	if err != nil {
		return TickResult{Outcome: TickNothingPending}
	}

	now := p.clock.HostTicks()
	hint := HintNone
	switch {
	case now > expiry:
		hint = HintDoNotDisplay
		p.stats.expired.Add(1)
	case now > target:
		hint = HintDisplayImmediately
		p.stats.late.Add(1)
	}

	result := TickResult{
		Hint: hint,
		PTS:  f.PTS,
		Gap:  gap,
	}

	if err := p.sink.Accept(f, hint); err != nil {
		p.stats.sinkFailures.Add(1)
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.logger.Error(
			"sink rejected frame, flushing pacer",
			"pts", result.PTS,
			"err", err,
		)
		p.Flush()

		result.Outcome = TickSinkFailed
		result.Err = err
		return result
	}

	result.Outcome = TickPresented
	result.DeliveredAt = p.clock.HostTicks()
	p.stats.presented.Add(1)
	p.stats.lastDeliveredAt.Store(result.DeliveredAt)

	if hint != HintNone {
		p.logger.Debug(
			"presented frame off schedule",
			"pts", result.PTS,
			"hint", hint,
			"target", target,
			"expiry", expiry,
			"now", now,
		)
	}
	return result
}

// --------------------------------------------------------------------------------
// Lifecycle

// Flush drops any pending frame, pauses the timebase and flushes the sink.
// The next Submit re-arms the pacer.
func (p *Pacer) Flush() {
	p.mu.Lock()
	if p.pending != nil {
		p.pending.Release()
		p.pending = nil
	}
	p.pendingGap = false
	p.hasLastEnd = false
	p.timebase.Reset(nil)
	p.mu.Unlock()

	p.sink.FlushPending()
}

// Close flushes the pacer and rejects all later work: Submit becomes a no-op
// and OnRefreshTick reports TickClosed. Close is idempotent and safe to call
// concurrently with Submit.
func (p *Pacer) Close() {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.Flush()
	p.logger.Debug("video pacer closed")
}

// --------------------------------------------------------------------------------
// Getters

func (p *Pacer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timebase.Anchored() {
		return StateArmed
	}
	return StateIdle
}

// Pending returns the timing metadata of the pending frame, if any.
func (p *Pacer) Pending() (frame.Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return frame.Frame{}, false
	}
	return p.pending.Peek()
}

// MediaTimeAt maps a host time to media seconds using the pacer's timebase.
// The boolean is false while the pacer is idle.
func (p *Pacer) MediaTimeAt(hostTicks uint64) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.timebase.Anchored() {
		return 0, false
	}
	return p.timebase.MediaOffset(hostTicks), true
}

// Err returns the last sink error, if any.
func (p *Pacer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Pacer) Stats() Stats {
	return p.stats.snapshot()
}

func (p *Pacer) UUID() uuid.UUID {
	return p.uuid
}
