package videopacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
)

type deadlines struct {
	target uint64
	expiry uint64
}

func TestDisplayLinkTicksWithDeadlines(t *testing.T) {
	fake := testingclock.NewFakeClock(time.Unix(1000, 0))
	host := timebase.NewSystemClock(fake)
	interval := IntervalForRefreshRate(50)
	require.Equal(t, 20*time.Millisecond, interval)

	ticks := make(chan deadlines, 4)
	link, err := NewDisplayLink(fake, host, interval, func(target, expiry uint64) {
		ticks <- deadlines{target, expiry}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()

	require.Eventually(t, fake.HasWaiters, time.Second, time.Millisecond)
	fake.Step(interval)

	select {
	case got := <-ticks:
		assert.Equal(t, uint64(40*time.Millisecond), got.target)
		assert.Equal(t, uint64(60*time.Millisecond), got.expiry)
	case <-time.After(time.Second):
		t.Fatal("display link did not tick")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("display link did not stop")
	}
}

func TestDisplayLinkDrivesPacer(t *testing.T) {
	fake := testingclock.NewFakeClock(time.Unix(1000, 0))
	host := timebase.NewSystemClock(fake)
	sink := &fakeSink{}
	p := New(sink, host, DefaultOptions())

	results := make(chan TickResult, 4)
	link, err := NewDisplayLink(fake, host, 10*time.Millisecond, func(target, expiry uint64) {
		results <- p.OnRefreshTick(target, expiry)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	p.Submit(videoFrame(0))
	require.Eventually(t, fake.HasWaiters, time.Second, time.Millisecond)
	fake.Step(10 * time.Millisecond)

	select {
	case result := <-results:
		assert.Equal(t, TickPresented, result.Outcome)
		assert.Equal(t, HintNone, result.Hint)
	case <-time.After(time.Second):
		t.Fatal("display link did not tick")
	}
}

func TestDisplayLinkRejectsZeroInterval(t *testing.T) {
	_, err := NewDisplayLink(nil, timebase.NewSystemClock(nil), 0, func(uint64, uint64) {})
	assert.ErrorIs(t, err, ErrInvalidRefreshInterval)
}
