package device

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
)

// Status codes reported in errkind.DeviceError by the devices in this package.
const (
	StatusNotOpen           int32 = -1
	StatusClosed            int32 = -2
	StatusAlreadyOpen       int32 = -3
	StatusUnsupportedFormat int32 = -4
	StatusRenderFailed      int32 = -5
)

var (
	errNotOpen           = errors.New("device is not open")
	errClosed            = errors.New("device is closed")
	errAlreadyOpen       = errors.New("device is already open")
	errUnsupportedFormat = errors.New("unsupported audio format")
)

// Renderer receives the samples a PullDevice plays, after volume is applied.
type Renderer interface {
	Open(format audiodevice.Format) error
	Render(samples frame.PCMFrame) error
	Close() error
}

type PullDeviceOptions struct {
	// Clock driving both the pull period and the device's host time.
	// Defaults to the real clock.
	Clock clock.WithTicker

	// Interval between automatic plays while started. Each period plays one
	// period's worth of sample frames, so it only sets the granularity of the
	// consumed callbacks and should be short next to a buffer. Zero disables
	// automatic plays: the device only plays when Pull or Play is called.
	Period time.Duration

	// Where played samples go. nil discards them.
	Renderer Renderer

	Logger *slog.Logger
}

// PullDevice is a software audio output device with the behaviour of a
// hardware audio queue: while started, it plays its FIFO queue in real time,
// one period at a time. A buffer finishes after its own duration, is rendered,
// and is handed back through the consumed callback.
type PullDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	clock    clock.WithTicker
	host     *timebase.SystemClock
	period   time.Duration
	renderer Renderer
	volume   gain

	mu       sync.Mutex
	format   audiodevice.Format
	consumed func(audiodevice.Buffer)
	queue    []audiodevice.Buffer
	opened   bool
	running  bool
	closed   bool
	samples  frame.PCMFrame
	stopLoop chan struct{}

	// Sample frames of the head buffer already played
	headPlayed int

	// Serializes rendering, so buffers are rendered in queue order even
	// when Pull is called from more than one goroutine
	renderMu sync.Mutex

	pulled  uint64
	starved uint64
}

func NewPullDevice(options PullDeviceOptions) *PullDevice {
	c := options.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	id := uuid.New()
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		"pull device uuid", id,
	)

	d := &PullDevice{
		logger:   logger,
		uuid:     id,
		clock:    c,
		host:     timebase.NewSystemClock(c),
		period:   options.Period,
		renderer: options.Renderer,
	}
	d.volume.set(1.0)
	return d
}

func deviceError(op string, code int32, err error) error {
	return &errkind.DeviceError{Op: op, Code: code, Err: err}
}

// --------------------------------------------------------------------------------
// OutputDevice Interface

func (d *PullDevice) Open(format audiodevice.Format, consumed func(audiodevice.Buffer)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.closed:
		return deviceError("open", StatusClosed, errClosed)
	case d.opened:
		return deviceError("open", StatusAlreadyOpen, errAlreadyOpen)
	}

	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return deviceError("open", StatusUnsupportedFormat, errUnsupportedFormat)
	}
	if format.SampleRate <= 0 || format.NumChannels <= 0 {
		return deviceError("open", StatusUnsupportedFormat, errUnsupportedFormat)
	}

	if d.renderer != nil {
		if err := d.renderer.Open(format); err != nil {
			return deviceError("open", StatusRenderFailed, err)
		}
	}

	d.format = format
	d.consumed = consumed
	d.opened = true
	d.logger.Debug(
		"opened pull device",
		"sampleRate", format.SampleRate,
		"channels", format.NumChannels,
		"bitDepth", format.BitDepth,
	)
	return nil
}

func (d *PullDevice) Enqueue(buf audiodevice.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked("enqueue"); err != nil {
		return err
	}
	d.queue = append(d.queue, buf)
	return nil
}

func (d *PullDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked("start"); err != nil {
		return err
	}
	if d.running {
		return nil
	}
	d.running = true
	if d.period > 0 {
		d.stopLoop = make(chan struct{})
		go d.pullLoop(d.stopLoop)
	}
	return nil
}

func (d *PullDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked("pause"); err != nil {
		return err
	}
	d.running = false
	d.stopLoopLocked()
	return nil
}

func (d *PullDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked("stop"); err != nil {
		return err
	}
	d.running = false
	d.queue = d.queue[:0]
	d.headPlayed = 0
	d.stopLoopLocked()
	return nil
}

func (d *PullDevice) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked("reset"); err != nil {
		return err
	}
	d.queue = d.queue[:0]
	d.headPlayed = 0
	return nil
}

func (d *PullDevice) SetVolume(volume float32) error {
	d.volume.set(volume)
	return nil
}

func (d *PullDevice) HostTicks() uint64 {
	return d.host.HostTicks()
}

func (d *PullDevice) TicksPerSecond() uint64 {
	return d.host.TicksPerSecond()
}

func (d *PullDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.running = false
	d.queue = nil
	wasOpen := d.opened
	d.stopLoopLocked()
	d.mu.Unlock()

	d.renderMu.Lock()
	defer d.renderMu.Unlock()
	if wasOpen && d.renderer != nil {
		if err := d.renderer.Close(); err != nil {
			return deviceError("close", StatusRenderFailed, err)
		}
	}
	d.logger.Debug("pull device closed")
	return nil
}

// --------------------------------------------------------------------------------
// Playback

// Pull finishes playing the buffer at the head of the queue, then returns it
// through the consumed callback.
//
// played is false if the device is not running, or if the queue was empty
// (a starved pull, which a real device would fill with silence).
func (d *PullDevice) Pull() (played bool, err error) {
	d.renderMu.Lock()

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		d.renderMu.Unlock()
		return false, nil
	}
	if len(d.queue) == 0 {
		d.starved++
		d.mu.Unlock()
		d.renderMu.Unlock()
		return false, nil
	}
	buf, format, consumed := d.popLocked()
	d.mu.Unlock()

	err = d.render(buf, format)
	d.renderMu.Unlock()

	if consumed != nil {
		consumed(buf)
	}
	if err != nil {
		return true, deviceError("render", StatusRenderFailed, err)
	}
	return true, nil
}

// Play advances the device by frames sample frames, as the hardware does over
// one period. Each buffer runs for as many frames as it holds: every buffer
// that finishes is rendered and returned through the consumed callback, and
// a buffer still playing when the frames run out carries over to the next
// call. Frames with nothing queued are rendered as silence.
func (d *PullDevice) Play(frames int) (finished int, err error) {
	for frames > 0 {
		d.renderMu.Lock()
		d.mu.Lock()
		if !d.running {
			d.mu.Unlock()
			d.renderMu.Unlock()
			return finished, err
		}

		if len(d.queue) == 0 {
			d.starved++
			format := d.format
			d.mu.Unlock()
			if silenceErr := d.renderSilence(frames, format); silenceErr != nil {
				err = errors.Join(err, deviceError("render", StatusRenderFailed, silenceErr))
			}
			d.renderMu.Unlock()
			return finished, err
		}

		remaining := d.format.FramesIn(len(d.queue[0].Bytes())) - d.headPlayed
		if frames < remaining {
			d.headPlayed += frames
			d.mu.Unlock()
			d.renderMu.Unlock()
			return finished, err
		}
		frames -= max(remaining, 0)
		buf, format, consumed := d.popLocked()
		d.mu.Unlock()

		renderErr := d.render(buf, format)
		d.renderMu.Unlock()

		if consumed != nil {
			consumed(buf)
		}
		finished++
		if renderErr != nil {
			err = errors.Join(err, deviceError("render", StatusRenderFailed, renderErr))
		}
	}
	return finished, err
}

func (d *PullDevice) popLocked() (audiodevice.Buffer, audiodevice.Format, func(audiodevice.Buffer)) {
	buf := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.headPlayed = 0
	d.pulled++
	return buf, d.format, d.consumed
}

func (d *PullDevice) render(buf audiodevice.Buffer, format audiodevice.Format) error {
	if d.renderer == nil {
		return nil
	}
	samples, err := frame.DecodeLPCM(d.samples[:0], buf.Bytes(), format.BitDepth)
	if err != nil {
		return err
	}
	d.samples = samples
	d.volume.apply(samples)
	return d.renderer.Render(samples)
}

func (d *PullDevice) renderSilence(frames int, format audiodevice.Format) error {
	if d.renderer == nil {
		return nil
	}
	n := frames * format.NumChannels
	if cap(d.samples) < n {
		d.samples = make(frame.PCMFrame, n)
	}
	d.samples = d.samples[:n]
	clear(d.samples)
	return d.renderer.Render(d.samples)
}

// The loop is signalled, never waited for: a pull in flight may be blocked
// in the consumed callback on a lock held by whoever is stopping the device.
func (d *PullDevice) pullLoop(stop <-chan struct{}) {
	ticker := d.clock.NewTicker(d.period)
	defer ticker.Stop()

	periodFrames := int(math.Round(d.period.Seconds() * float64(d.Format().SampleRate)))
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			select {
			case <-stop:
				return
			default:
			}
			if _, err := d.Play(periodFrames); err != nil {
				d.logger.Error(
					"error while rendering buffer",
					"err", err,
				)
			}
		}
	}
}

// --------------------------------------------------------------------------------
// Helpers

func (d *PullDevice) usableLocked(op string) error {
	if d.closed {
		return deviceError(op, StatusClosed, errClosed)
	}
	if !d.opened {
		return deviceError(op, StatusNotOpen, errNotOpen)
	}
	return nil
}

func (d *PullDevice) stopLoopLocked() {
	if d.stopLoop != nil {
		close(d.stopLoop)
		d.stopLoop = nil
	}
}

// --------------------------------------------------------------------------------
// Getters

// Number of buffers waiting to be played.
func (d *PullDevice) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *PullDevice) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Buffers played, and pulls or periods that found the queue empty.
func (d *PullDevice) PullCounts() (pulled, starved uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pulled, d.starved
}

func (d *PullDevice) Volume() float32 {
	return d.volume.get()
}

func (d *PullDevice) Format() audiodevice.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}
