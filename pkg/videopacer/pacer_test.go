package videopacer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
)

type presented struct {
	f    frame.Frame
	hint Hint
}

type fakeSink struct {
	mu       sync.Mutex
	notReady bool
	err      error
	accepted []presented
	flushes  int
}

func (s *fakeSink) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.notReady
}

func (s *fakeSink) Accept(f frame.Frame, hint Hint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.accepted = append(s.accepted, presented{f: f, hint: hint})
	return nil
}

func (s *fakeSink) FlushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *fakeSink) setReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notReady = !ready
}

func (s *fakeSink) snapshot() ([]presented, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presented(nil), s.accepted...), s.flushes
}

func newTestPacer(t *testing.T) (*Pacer, *fakeSink, *testingclock.FakeClock) {
	t.Helper()
	fake := testingclock.NewFakeClock(time.Unix(1000, 0))
	sink := &fakeSink{}
	return New(sink, timebase.NewSystemClock(fake), DefaultOptions()), sink, fake
}

func videoFrame(index int64) frame.Frame {
	return frame.Frame{
		Data:        []byte{byte(index), byte(index), byte(index), 0xff},
		PTS:         frame.NewTime(index, 30),
		Duration:    frame.NewTime(1, 30),
		Width:       1,
		Height:      1,
		PixelFormat: frame.PixelFormatBGRA32,
	}
}

const (
	farTarget = uint64(time.Hour)
	farExpiry = uint64(2 * time.Hour)
)

func TestLastSubmissionWins(t *testing.T) {
	p, sink, _ := newTestPacer(t)

	for i := int64(0); i < 5; i++ {
		sub := p.Submit(videoFrame(i))
		assert.Equal(t, i > 0, sub.Replaced)
		assert.False(t, sub.Discontinuity)
	}

	result := p.OnRefreshTick(farTarget, farExpiry)
	require.Equal(t, TickPresented, result.Outcome)
	assert.Equal(t, HintNone, result.Hint)

	accepted, _ := sink.snapshot()
	require.Len(t, accepted, 1)
	assert.True(t, accepted[0].f.PTS.Equal(frame.NewTime(4, 30)))

	stats := p.Stats()
	assert.Equal(t, uint64(5), stats.Submitted)
	assert.Equal(t, uint64(4), stats.Replaced)
	assert.Equal(t, uint64(1), stats.Presented)
}

func TestTickWithoutSubmissionIsNoop(t *testing.T) {
	p, sink, _ := newTestPacer(t)

	assert.Equal(t, TickNothingPending, p.OnRefreshTick(farTarget, farExpiry).Outcome)

	p.Submit(videoFrame(0))
	require.Equal(t, TickPresented, p.OnRefreshTick(farTarget, farExpiry).Outcome)
	assert.Equal(t, TickNothingPending, p.OnRefreshTick(farTarget, farExpiry).Outcome)

	accepted, _ := sink.snapshot()
	assert.Len(t, accepted, 1)
	assert.Equal(t, StateArmed, p.State())
}

func TestSubmitCopiesFrameData(t *testing.T) {
	p, sink, _ := newTestPacer(t)

	f := videoFrame(7)
	p.Submit(f)
	// The capture source recycles its buffer after the callback returns
	for i := range f.Data {
		f.Data[i] = 0
	}

	require.Equal(t, TickPresented, p.OnRefreshTick(farTarget, farExpiry).Outcome)
	accepted, _ := sink.snapshot()
	require.Len(t, accepted, 1)
	assert.Equal(t, []byte{7, 7, 7, 0xff}, accepted[0].f.Data)
}

func TestSinkNotReadyLeavesSlot(t *testing.T) {
	p, sink, _ := newTestPacer(t)
	sink.setReady(false)

	p.Submit(videoFrame(3))
	result := p.OnRefreshTick(farTarget, farExpiry)
	assert.Equal(t, TickSinkNotReady, result.Outcome)

	pending, ok := p.Pending()
	require.True(t, ok)
	assert.True(t, pending.PTS.Equal(frame.NewTime(3, 30)))
	assert.Nil(t, pending.Data)

	accepted, flushes := sink.snapshot()
	assert.Empty(t, accepted)
	assert.Equal(t, 1, flushes)

	sink.setReady(true)
	assert.Equal(t, TickPresented, p.OnRefreshTick(farTarget, farExpiry).Outcome)
	assert.Equal(t, uint64(1), p.Stats().SinkNotReady)
}

func TestDeadlineHints(t *testing.T) {
	p, sink, fake := newTestPacer(t)
	fake.Step(10 * time.Millisecond)
	now := uint64(10 * time.Millisecond)

	p.Submit(videoFrame(0))
	result := p.OnRefreshTick(now+uint64(time.Millisecond), now+uint64(2*time.Millisecond))
	assert.Equal(t, HintNone, result.Hint)

	p.Submit(videoFrame(1))
	result = p.OnRefreshTick(now-uint64(time.Millisecond), now+uint64(time.Millisecond))
	assert.Equal(t, HintDisplayImmediately, result.Hint)

	p.Submit(videoFrame(2))
	result = p.OnRefreshTick(now-uint64(2*time.Millisecond), now-uint64(time.Millisecond))
	assert.Equal(t, HintDoNotDisplay, result.Hint)

	accepted, _ := sink.snapshot()
	require.Len(t, accepted, 3)
	assert.Equal(t, HintDoNotDisplay, accepted[2].hint)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Late)
	assert.Equal(t, uint64(1), stats.Expired)
	assert.Equal(t, uint64(3), stats.Presented)
	assert.Equal(t, now, stats.LastDeliveredAt)
}

func TestDiscontinuityFlagsGap(t *testing.T) {
	p, sink, _ := newTestPacer(t)

	var gaps []int64
	for _, index := range []int64{0, 1, 2, 5, 6} {
		sub := p.Submit(videoFrame(index))
		assert.Equal(t, index == 5, sub.Discontinuity, "frame %d", index)

		result := p.OnRefreshTick(farTarget, farExpiry)
		require.Equal(t, TickPresented, result.Outcome)
		if result.Gap {
			gaps = append(gaps, index)
		}
	}

	assert.Equal(t, []int64{5}, gaps)
	assert.Equal(t, uint64(1), p.Stats().Discontinuities)

	_, flushes := sink.snapshot()
	assert.Equal(t, 1, flushes)

	// Re-anchored to the frame after the gap
	offset, ok := p.MediaTimeAt(0)
	require.True(t, ok)
	assert.InDelta(t, 5.0/30.0, offset, 1e-9)
}

func TestContiguousFramesAcrossScalesAreNotGaps(t *testing.T) {
	p, _, _ := newTestPacer(t)

	// Nanosecond timestamps with 90kHz durations
	for i := range 200 {
		f := videoFrame(0)
		f.PTS = frame.FromDuration(time.Hour + time.Duration(i)*10*time.Millisecond)
		f.Duration = frame.NewTime(900, 90000)
		sub := p.Submit(f)
		assert.False(t, sub.Discontinuity, "frame %d", i)
	}
	assert.Zero(t, p.Stats().Discontinuities)
}

func TestGapSurvivesReplacement(t *testing.T) {
	p, _, _ := newTestPacer(t)

	p.Submit(videoFrame(0))
	p.Submit(videoFrame(4))
	p.Submit(videoFrame(5))

	result := p.OnRefreshTick(farTarget, farExpiry)
	require.Equal(t, TickPresented, result.Outcome)
	assert.True(t, result.Gap)
	assert.True(t, result.PTS.Equal(frame.NewTime(5, 30)))
}

func TestDiscontinuityWithoutFlush(t *testing.T) {
	fake := testingclock.NewFakeClock(time.Unix(1000, 0))
	sink := &fakeSink{}
	options := DefaultOptions()
	options.FlushOnDiscontinuity = false
	p := New(sink, timebase.NewSystemClock(fake), options)

	p.Submit(videoFrame(0))
	sub := p.Submit(videoFrame(9))
	assert.True(t, sub.Discontinuity)

	_, flushes := sink.snapshot()
	assert.Zero(t, flushes)
}

func TestFlushClearsSlotAndTimebase(t *testing.T) {
	p, sink, _ := newTestPacer(t)

	p.Submit(videoFrame(0))
	require.Equal(t, StateArmed, p.State())

	p.Flush()
	assert.Equal(t, StateIdle, p.State())
	_, ok := p.Pending()
	assert.False(t, ok)
	_, ok = p.MediaTimeAt(0)
	assert.False(t, ok)
	assert.Equal(t, TickNothingPending, p.OnRefreshTick(farTarget, farExpiry).Outcome)

	// A frame that does not follow on from the flushed one is not a gap
	sub := p.Submit(videoFrame(20))
	assert.False(t, sub.Discontinuity)
	assert.Equal(t, StateArmed, p.State())

	_, flushes := sink.snapshot()
	assert.Equal(t, 1, flushes)
}

func TestSinkFailureStopsPacer(t *testing.T) {
	p, sink, _ := newTestPacer(t)
	sinkErr := errors.New("surface lost")
	sink.err = sinkErr

	p.Submit(videoFrame(0))
	result := p.OnRefreshTick(farTarget, farExpiry)
	assert.Equal(t, TickSinkFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, sinkErr)
	assert.ErrorIs(t, p.Err(), sinkErr)
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, uint64(1), p.Stats().SinkFailures)
}

func TestSubmitAfterCloseIsIgnored(t *testing.T) {
	p, sink, _ := newTestPacer(t)
	p.Submit(videoFrame(0))

	p.Close()
	p.Close()

	assert.True(t, p.Submit(videoFrame(1)).Ignored)
	assert.Equal(t, TickClosed, p.OnRefreshTick(farTarget, farExpiry).Outcome)
	assert.Equal(t, uint64(1), p.Stats().Submitted)

	accepted, flushes := sink.snapshot()
	assert.Empty(t, accepted)
	assert.Equal(t, 1, flushes)
}

func TestSubmitAfterCloseDoesNotCopy(t *testing.T) {
	p, _, _ := newTestPacer(t)
	p.Close()

	f := videoFrame(0)
	f.Data = make([]byte, 1920*1080*4)
	ignored := 0
	allocs := testing.AllocsPerRun(100, func() {
		if p.Submit(f).Ignored {
			ignored++
		}
	})
	assert.Zero(t, allocs)
	// AllocsPerRun adds one warm-up call
	assert.Equal(t, 101, ignored)
	assert.Zero(t, p.Stats().Submitted)
	_, ok := p.Pending()
	assert.False(t, ok)
}

func TestConcurrentSubmitAndTick(t *testing.T) {
	p, sink, _ := newTestPacer(t)
	const frames = 2000

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := int64(0); i < frames; i++ {
			p.Submit(videoFrame(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			p.OnRefreshTick(farTarget, farExpiry)
		}
	}()
	wg.Wait()

	stats := p.Stats()
	var stillPending uint64
	if _, ok := p.Pending(); ok {
		stillPending = 1
	}
	assert.Equal(t, uint64(frames), stats.Submitted)
	assert.Equal(t, stats.Submitted, stats.Presented+stats.Replaced+stillPending)
	assert.Zero(t, stats.Discontinuities)

	// Presentation order follows submission order
	accepted, _ := sink.snapshot()
	for i := 1; i < len(accepted); i++ {
		assert.Equal(t, 1, accepted[i].f.PTS.Compare(accepted[i-1].f.PTS))
	}
}
