package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/videopacer"
)

func picture(index int64) frame.Frame {
	return frame.Frame{
		Data:        make([]byte, 2*2*4),
		PTS:         frame.NewTime(index, 60),
		Duration:    frame.NewTime(1, 60),
		Width:       2,
		Height:      2,
		PixelFormat: frame.PixelFormatBGRA32,
	}
}

func newTestSurface() (*Surface, *testingclock.FakeClock) {
	fake := testingclock.NewFakeClock(time.Unix(1000, 0))
	return NewSurface(timebase.NewSystemClock(fake), 5*time.Millisecond), fake
}

func TestSurfaceComposites(t *testing.T) {
	s, fake := newTestSurface()
	require.True(t, s.IsReady())

	require.NoError(t, s.Accept(picture(1), videopacer.HintNone))
	assert.False(t, s.IsReady())
	_, ok := s.OnScreen()
	assert.False(t, ok)

	fake.Step(5 * time.Millisecond)
	assert.True(t, s.IsReady())
	onScreen, ok := s.OnScreen()
	require.True(t, ok)
	assert.True(t, onScreen.PTS.Equal(frame.NewTime(1, 60)))
	assert.Equal(t, uint64(1), s.Stats().Displayed)
}

func TestSurfaceHints(t *testing.T) {
	s, _ := newTestSurface()

	require.NoError(t, s.Accept(picture(1), videopacer.HintDoNotDisplay))
	assert.True(t, s.IsReady())

	require.NoError(t, s.Accept(picture(2), videopacer.HintDisplayImmediately))
	assert.True(t, s.IsReady())
	onScreen, ok := s.OnScreen()
	require.True(t, ok)
	assert.True(t, onScreen.PTS.Equal(frame.NewTime(2, 60)))

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Skipped)
	assert.Equal(t, uint64(1), stats.Immediate)
	assert.Equal(t, uint64(1), stats.Displayed)
}

func TestSurfaceFlushDropsQueuedFrame(t *testing.T) {
	s, fake := newTestSurface()

	require.NoError(t, s.Accept(picture(1), videopacer.HintNone))
	s.FlushPending()
	assert.True(t, s.IsReady())

	fake.Step(time.Second)
	_, ok := s.OnScreen()
	assert.False(t, ok)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Flushed)
	assert.Equal(t, uint64(1), stats.Flushes)
	assert.Zero(t, stats.Displayed)
}

func TestSurfaceRejectsShortFrames(t *testing.T) {
	s, _ := newTestSurface()

	f := picture(1)
	f.Data = f.Data[:3]
	err := s.Accept(f, videopacer.HintNone)
	var deviceErr *errkind.DeviceError
	require.ErrorAs(t, err, &deviceErr)
	assert.Equal(t, StatusBadFrame, deviceErr.Code)
	assert.Equal(t, errkind.PlatformDevice, errkind.Of(err))
}

func TestClosedSurfaceRejectsFrames(t *testing.T) {
	s, _ := newTestSurface()
	s.Close()

	assert.False(t, s.IsReady())
	err := s.Accept(picture(1), videopacer.HintNone)
	var deviceErr *errkind.DeviceError
	require.ErrorAs(t, err, &deviceErr)
	assert.Equal(t, StatusSurfaceClosed, deviceErr.Code)
}

func TestPacerPresentsToSurface(t *testing.T) {
	fake := testingclock.NewFakeClock(time.Unix(1000, 0))
	host := timebase.NewSystemClock(fake)
	s := NewSurface(host, 5*time.Millisecond)
	p := videopacer.New(s, host, videopacer.DefaultOptions())

	interval := uint64(16 * time.Millisecond)
	tick := func() videopacer.TickResult {
		target := host.HostTicks() + interval
		return p.OnRefreshTick(target, target+interval)
	}

	p.Submit(picture(0))
	assert.Equal(t, videopacer.TickPresented, tick().Outcome)

	// The compositor is still busy with frame 0
	p.Submit(picture(1))
	assert.Equal(t, videopacer.TickSinkNotReady, tick().Outcome)

	fake.Step(16 * time.Millisecond)
	assert.Equal(t, videopacer.TickPresented, tick().Outcome)

	fake.Step(16 * time.Millisecond)
	onScreen, ok := s.OnScreen()
	require.True(t, ok)
	assert.True(t, onScreen.PTS.Equal(frame.NewTime(1, 60)))
}
