// Package audioplayer plays live audio through a small, fixed pool of
// buffers queued on an output device.
//
// Unlike video, audio cannot drop data silently without an audible glitch,
// and cannot stall the device without an audible gap. The player therefore
// queues frames in order, rejects frames when every buffer is in flight, and
// pads the device with silence whenever the queue runs dry.
package audioplayer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
)

const (
	DefaultBufferCount = 3

	// Buffers per second: 10 gives 100ms buffers
	DefaultResolution = 10

	// Length of the silence queued when priming and on underrun
	DefaultPadDuration = 10 * time.Millisecond

	// Upper bound on a single buffer
	maxBufferBytes = 64 << 20
)

type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

type Options struct {
	// Number of buffers in the pool
	BufferCount int

	// Buffers per second of audio. Each buffer holds SampleRate/Resolution frames.
	Resolution int

	// Duration of each silence pad. A pad plays for its own length, so a
	// short pad keeps the latency it adds small. Zero or less pads with a
	// whole buffer.
	PadDuration time.Duration

	// Called, without any player lock held, for failures on the device's
	// goroutine that no caller can be told about, e.g. failing to queue
	// underrun padding.
	OnError func(error)

	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		BufferCount: DefaultBufferCount,
		Resolution:  DefaultResolution,
		PadDuration: DefaultPadDuration,
	}
}

// RingPlayer feeds an OutputDevice from a fixed pool of buffers.
//
// All pool state is guarded by one mutex. The device's consumed callback
// takes that mutex too, which is why devices must never invoke it from
// inside Enqueue. Work that must happen inside the critical section from
// more than one entry point lives in the ...Locked helpers.
type RingPlayer struct {
	logger *slog.Logger
	uuid   uuid.UUID

	format        audiodevice.Format
	quantumFrames int
	quantumBytes  int
	padFrames     int
	device        audiodevice.OutputDevice
	onError       func(error)

	mu            sync.Mutex
	slots         []slot
	enqueuedCount int
	// Sequence number of the last submission to the device
	handoffs      uint64
	state         State
	silence       []byte
	timebase      *timebase.Timebase
	anchorPending bool
	volume        float32
	lastErr       error

	stats counters
}

// Create a new RingPlayer for format, and open device with that format.
//
// The pool is allocated once here; steady-state playback allocates nothing.
// Invalid formats and options are Configuration errors, as is a device that
// will not open with the format.
func New(format audiodevice.Format, device audiodevice.OutputDevice, options Options) (*RingPlayer, error) {
	if err := validateFormat(format); err != nil {
		return nil, err
	}
	if options.BufferCount <= 0 || options.Resolution <= 0 {
		return nil, fmt.Errorf(
			"%w: %d buffers at resolution %d",
			ErrInvalidOptions, options.BufferCount, options.Resolution,
		)
	}

	quantumFrames := format.SampleRate / options.Resolution
	if quantumFrames <= 0 {
		return nil, fmt.Errorf(
			"%w: %dHz at resolution %d leaves no frames per buffer",
			ErrAllocationFailed, format.SampleRate, options.Resolution,
		)
	}
	quantumBytes := quantumFrames * format.BytesPerFrame()
	if quantumBytes > maxBufferBytes || options.BufferCount > maxBufferBytes/quantumBytes {
		return nil, fmt.Errorf(
			"%w: %d buffers of %d bytes",
			ErrAllocationFailed, options.BufferCount, quantumBytes,
		)
	}

	padFrames := quantumFrames
	if options.PadDuration > 0 {
		padFrames = int(math.Round(options.PadDuration.Seconds() * float64(format.SampleRate)))
		padFrames = min(max(padFrames, 1), quantumFrames)
	}
	silence, err := frame.EncodeLPCM(
		make([]byte, 0, padFrames*format.BytesPerFrame()),
		make(frame.PCMFrame, padFrames*format.NumChannels),
		format.BitDepth,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	id := uuid.New()
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		"audio player uuid", id,
	)

	p := &RingPlayer{
		logger:        logger,
		uuid:          id,
		format:        format,
		quantumFrames: quantumFrames,
		quantumBytes:  quantumBytes,
		padFrames:     padFrames,
		device:        device,
		onError:       options.OnError,
		silence:       silence,
		timebase:      timebase.New(device),
		anchorPending: true,
		volume:        1.0,
	}

	backing := make([]byte, options.BufferCount*quantumBytes)
	p.slots = make([]slot, options.BufferCount)
	for i := range p.slots {
		s := &p.slots[i]
		s.data = backing[i*quantumBytes : (i+1)*quantumBytes : (i+1)*quantumBytes]
	}

	if err := device.Open(format, p.onConsumed); err != nil {
		logger.Error(
			"could not open audio device",
			"sampleRate", format.SampleRate,
			"channels", format.NumChannels,
			"bitDepth", format.BitDepth,
			"err", err,
		)
		return nil, fmt.Errorf("%w %+v: %w", ErrDeviceFormat, format, err)
	}

	logger.Debug(
		"created audio player",
		"buffers", options.BufferCount,
		"framesPerBuffer", quantumFrames,
		"bytesPerBuffer", quantumBytes,
		"framesPerPad", padFrames,
	)
	return p, nil
}

func validateFormat(format audiodevice.Format) error {
	switch {
	case format.NumChannels <= 0:
		return fmt.Errorf("%w: %d channels", ErrInvalidFormat, format.NumChannels)
	case format.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, format.SampleRate)
	}
	switch format.BitDepth {
	case 8, 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("%w: bit depth %d", ErrInvalidFormat, format.BitDepth)
	}
}

// --------------------------------------------------------------------------------
// Producer side

// Enqueue copies the samples of f into a free buffer and queues it on the
// device, behind every buffer queued before it.
//
// When every buffer is queued Enqueue returns ErrNoFreeSlot and changes
// nothing. Payloads that are empty, not a whole number of sample frames, or
// larger than one buffer are rejected. Device failures are returned as the
// device reported them.
func (p *RingPlayer) Enqueue(f frame.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDisposed {
		return ErrDisposed
	}

	n := len(f.Data)
	switch {
	case n == 0:
		p.stats.rejected.Add(1)
		return ErrEmptyFrame
	case n%p.format.BytesPerFrame() != 0:
		p.stats.rejected.Add(1)
		return fmt.Errorf("%w: %d bytes", ErrMisalignedFrame, n)
	case n > p.quantumBytes:
		p.stats.rejected.Add(1)
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, n, p.quantumBytes)
	}

	if p.enqueuedCount == len(p.slots) {
		p.stats.noFreeSlot.Add(1)
		return ErrNoFreeSlot
	}

	s := p.freeSlotLocked()
	s.length = copy(s.data, f.Data)
	if err := p.submitLocked(s); err != nil {
		return err
	}
	p.stats.enqueued.Add(1)

	if p.anchorPending {
		p.timebase.Reset(&f)
		p.anchorPending = false
	}
	return nil
}

// --------------------------------------------------------------------------------
// Consumer side

// onConsumed is the device's consumed callback. It runs on the device's
// goroutine and must never report failures back into the device.
func (p *RingPlayer) onConsumed(buf audiodevice.Buffer) {
	h, ok := buf.(handoff)
	if !ok || h.slot == nil {
		return
	}

	p.mu.Lock()
	s := h.slot
	if !s.queued || s.handoff != h.seq {
		p.mu.Unlock()
		p.stats.stale.Add(1)
		return
	}

	s.free()
	p.adjustCountLocked(-1)
	p.stats.consumed.Add(1)

	var err error
	if p.enqueuedCount == 0 && p.state == StateRunning {
		err = p.queueSilenceLocked()
		if err == nil {
			p.stats.underruns.Add(1)
			p.logger.Warn(
				"audio underrun, padding with silence",
				"frames", p.padFrames,
			)
		}
	}
	p.mu.Unlock()

	if err != nil {
		p.report(err)
	}
}

// --------------------------------------------------------------------------------
// Lifecycle

// Start the device. The first Start after construction or Stop primes every
// free buffer with silence, so the device has a full queue from the outset.
// Start while running does nothing.
func (p *RingPlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateDisposed:
		return ErrDisposed
	case StateRunning:
		return nil
	case StateStopped:
		if err := p.primeLocked(); err != nil {
			return err
		}
	case StatePaused:
		if p.enqueuedCount == 0 {
			if err := p.queueSilenceLocked(); err != nil {
				return err
			}
		}
	}

	if err := p.device.Start(); err != nil {
		p.deviceFailedLocked("start", err)
		return err
	}
	p.state = StateRunning
	p.logger.Debug("audio player started")
	return nil
}

// Pause the device, keeping queued buffers.
func (p *RingPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateDisposed:
		return ErrDisposed
	case StateRunning:
	default:
		return nil
	}

	if err := p.device.Pause(); err != nil {
		p.deviceFailedLocked("pause", err)
		return err
	}
	p.state = StatePaused
	return nil
}

// Stop the device and invalidate every queued buffer. Stop is safe to call
// on a player that was never started, and after Dispose.
func (p *RingPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDisposed {
		return nil
	}
	return p.stopLocked()
}

// Reset discards every queued buffer without changing the running state.
// A running player is immediately re-padded with silence.
func (p *RingPlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDisposed {
		return ErrDisposed
	}

	if err := p.device.Reset(); err != nil {
		p.deviceFailedLocked("reset", err)
		return err
	}
	p.invalidateLocked()
	if p.state == StateRunning {
		return p.queueSilenceLocked()
	}
	return nil
}

// SetVolume sets the device gain. volume is clamped to [0, 1].
func (p *RingPlayer) SetVolume(volume float32) error {
	if volume < 0 || math.IsNaN(float64(volume)) {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDisposed {
		return ErrDisposed
	}
	if err := p.device.SetVolume(volume); err != nil {
		p.deviceFailedLocked("set volume", err)
		return err
	}
	p.volume = volume
	return nil
}

// Dispose stops the player, releases every buffer and closes the device.
// A second Dispose does nothing.
func (p *RingPlayer) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDisposed {
		return nil
	}

	stopErr := p.stopLocked()
	closeErr := p.device.Close()
	if closeErr != nil {
		p.deviceFailedLocked("close", closeErr)
	}

	p.state = StateDisposed
	p.slots = nil
	p.silence = nil
	p.logger.Debug("audio player disposed")

	if stopErr != nil || closeErr != nil {
		return fmt.Errorf("could not dispose audio player: %w", errors.Join(stopErr, closeErr))
	}
	return nil
}

// --------------------------------------------------------------------------------
// Locked helpers, only called with p.mu held

// The single place enqueuedCount changes.
//
// A count outside [0, N], or one that disagrees with the queued slots, means
// a buffer was lost or handed out twice. That is a programming error with
// no recovery, so it panics.
func (p *RingPlayer) adjustCountLocked(delta int) {
	p.enqueuedCount += delta

	queued := 0
	for i := range p.slots {
		if p.slots[i].queued {
			queued++
		}
	}
	if p.enqueuedCount < 0 || p.enqueuedCount > len(p.slots) || p.enqueuedCount != queued {
		panic(fmt.Sprintf(
			"audio player buffer accounting broken: count %d, queued %d, buffers %d",
			p.enqueuedCount, queued, len(p.slots),
		))
	}
}

func (p *RingPlayer) freeSlotLocked() *slot {
	for i := range p.slots {
		if !p.slots[i].queued {
			return &p.slots[i]
		}
	}
	panic("audio player has no free buffer despite a free count")
}

// Hand s to the device. On failure s stays free.
func (p *RingPlayer) submitLocked(s *slot) error {
	p.handoffs++
	h := handoff{slot: s, seq: p.handoffs, data: s.data[:s.length]}
	if err := p.device.Enqueue(h); err != nil {
		s.length = 0
		p.deviceFailedLocked("enqueue", err)
		return err
	}
	s.handoff = h.seq
	s.queued = true
	p.adjustCountLocked(+1)
	return nil
}

// Queue one silence pad.
func (p *RingPlayer) queueSilenceLocked() error {
	if p.enqueuedCount == len(p.slots) {
		return nil
	}
	s := p.freeSlotLocked()
	s.length = copy(s.data, p.silence)
	return p.submitLocked(s)
}

// Fill every free buffer with silence.
func (p *RingPlayer) primeLocked() error {
	for p.enqueuedCount < len(p.slots) {
		if err := p.queueSilenceLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Forget every queued buffer. Callbacks still in flight for them no longer
// match their slot's hand-off and are counted as stale.
func (p *RingPlayer) invalidateLocked() {
	for i := range p.slots {
		if p.slots[i].queued {
			p.slots[i].free()
			p.adjustCountLocked(-1)
		}
	}
	p.timebase.Reset(nil)
	p.anchorPending = true
}

func (p *RingPlayer) stopLocked() error {
	err := p.device.Stop()
	if err != nil {
		p.deviceFailedLocked("stop", err)
	}
	p.invalidateLocked()
	if p.state != StateStopped {
		p.logger.Debug("audio player stopped")
	}
	p.state = StateStopped
	return err
}

func (p *RingPlayer) deviceFailedLocked(op string, err error) {
	p.lastErr = err
	p.stats.deviceErrors.Add(1)
	p.logger.Error(
		"audio device error",
		"op", op,
		"kind", errkind.Of(err),
		"err", err,
	)
}

func (p *RingPlayer) report(err error) {
	if p.onError != nil {
		p.onError(err)
	}
}

// --------------------------------------------------------------------------------
// Getters

func (p *RingPlayer) EnqueuedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enqueuedCount
}

func (p *RingPlayer) BufferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

func (p *RingPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the last device error, if any.
func (p *RingPlayer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *RingPlayer) Volume() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// MediaTimeAt maps a device host time to media seconds. The boolean is false
// until a frame has been enqueued since the last (re)start.
func (p *RingPlayer) MediaTimeAt(hostTicks uint64) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.timebase.Anchored() {
		return 0, false
	}
	return p.timebase.MediaOffset(hostTicks), true
}

func (p *RingPlayer) Stats() Stats {
	return p.stats.snapshot()
}

func (p *RingPlayer) Format() audiodevice.Format {
	return p.format
}

// Frames of audio held by one buffer.
func (p *RingPlayer) FramesPerBuffer() int {
	return p.quantumFrames
}

// Frames of silence in one priming or underrun pad.
func (p *RingPlayer) PadFrames() int {
	return p.padFrames
}

func (p *RingPlayer) UUID() uuid.UUID {
	return p.uuid
}
