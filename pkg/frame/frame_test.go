package frame

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeAddAcrossScales(t *testing.T) {
	a := NewTime(1, 30)
	b := NewTime(1, 60)

	sum := a.Add(b)
	assert.True(t, sum.Equal(NewTime(3, 60)), "got %s", sum)
	assert.InDelta(t, 0.05, sum.Seconds(), 1e-9)
}

func TestTimeCompare(t *testing.T) {
	assert.Equal(t, 0, NewTime(1, 2).Compare(NewTime(45000, 90000)))
	assert.Equal(t, -1, NewTime(1, 3).Compare(NewTime(1, 2)))
	assert.Equal(t, 1, NewTime(5, 1).Compare(NewTime(4, 1)))
}

func TestTimeAddBeyondCommonScale(t *testing.T) {
	// Host clock timestamps with a 90kHz duration: lcm(1e9, 90000) does
	// not fit a scale
	for i := range 100 {
		pts := FromDuration(time.Duration(i) * 10 * time.Millisecond)
		end := pts.Add(NewTime(900, 90000))
		assert.Equal(t, int32(1_000_000_000), end.Scale)
		assert.True(t, end.Equal(FromDuration(time.Duration(i+1)*10*time.Millisecond)), "frame %d ends at %s", i, end)
	}

	// The coarser operand is rounded to the nearest nanosecond
	third := NewTime(1, 3).Add(NewTime(0, 1_000_000_000))
	assert.Equal(t, NewTime(333_333_333, 1_000_000_000), third)
	twoThirds := NewTime(-2, 3).Add(NewTime(0, 1_000_000_000))
	assert.Equal(t, NewTime(-666_666_667, 1_000_000_000), twoThirds)
}

func TestTimeAddSaturates(t *testing.T) {
	assert.Equal(t, NewTime(math.MaxInt64, 1), NewTime(math.MaxInt64, 1).Add(NewTime(1, 1)))
	assert.Equal(t, NewTime(math.MinInt64, 1), NewTime(math.MinInt64, 1).Add(NewTime(-1, 1)))
}

func TestTimeCompareLargeValues(t *testing.T) {
	// Eleven days of uptime in nanoseconds; the cross products exceed int64
	ns := NewTime(1_000_000_000_000_000, 1_000_000_000)
	ticks := NewTime(90_000_000_000, 90000)
	assert.Equal(t, 0, ns.Compare(ticks))
	assert.True(t, ns.Equal(ticks))
	assert.Equal(t, -1, ns.Compare(NewTime(90_000_000_001, 90000)))
	assert.Equal(t, 1, NewTime(1_000_000_000_000_001, 1_000_000_000).Compare(ticks))

	negative := NewTime(-1_000_000_000_000_000, 1_000_000_000)
	assert.Equal(t, -1, negative.Compare(NewTime(-89_999_999_999, 90000)))
	assert.Equal(t, 1, NewTime(-89_999_999_999, 90000).Compare(negative))
	assert.Equal(t, -1, negative.Compare(NewTime(0, 90000)))
	assert.Equal(t, -1, NewTime(math.MinInt64, 1_000_000_000).Compare(NewTime(math.MaxInt64, 90000)))
}

func TestInvalidTimeAdd(t *testing.T) {
	valid := NewTime(7, 1)
	assert.Equal(t, valid, Time{}.Add(valid))
	assert.Equal(t, valid, valid.Add(Time{}))
	assert.False(t, Time{}.Equal(valid))
}

func TestFrameEnd(t *testing.T) {
	f := Frame{PTS: NewTime(2, 1), Duration: NewTime(1, 1)}
	assert.True(t, f.End().Equal(NewTime(3, 1)))
}

func TestOwnDeepCopies(t *testing.T) {
	capture := []byte{1, 2, 3, 4}
	owned := Own(Frame{Data: capture, PTS: NewTime(0, 1)})

	// The capture pool recycles its buffer after the callback returns
	for i := range capture {
		capture[i] = 0xFF
	}

	f, err := owned.Take()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, f.Data)
}

func TestTakeMovesOutOnce(t *testing.T) {
	owned := Own(Frame{Data: []byte{9}, PTS: NewTime(4, 1)})

	meta, ok := owned.Peek()
	require.True(t, ok)
	assert.Nil(t, meta.Data)
	assert.True(t, meta.PTS.Equal(NewTime(4, 1)))

	_, err := owned.Take()
	require.NoError(t, err)
	assert.True(t, owned.Moved())

	_, err = owned.Take()
	assert.ErrorIs(t, err, ErrMovedOut)
	_, ok = owned.Peek()
	assert.False(t, ok)
}

func TestLPCMRoundTrip16(t *testing.T) {
	samples := PCMFrame{0, 0.5, -0.5, 1, -1}

	encoded, err := EncodeLPCM(nil, samples, 16)
	require.NoError(t, err)
	assert.Len(t, encoded, 10)

	decoded, err := DecodeLPCM(nil, encoded, 16)
	require.NoError(t, err)
	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], decoded[i], 1.0/16384)
	}
}

func TestLPCMSilenceIsZeroBytes(t *testing.T) {
	encoded, err := EncodeLPCM(nil, make(PCMFrame, 4), 24)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 12), encoded)
}

func TestLPCMRejectsOddBitDepth(t *testing.T) {
	_, err := EncodeLPCM(nil, PCMFrame{0}, 12)
	assert.Error(t, err)
	_, err = DecodeLPCM(nil, []byte{0, 0}, 40)
	assert.Error(t, err)
}

func TestPixelFormatFrameSize(t *testing.T) {
	assert.Equal(t, 4*4*4, PixelFormatBGRA32.FrameSize(4, 4))
	assert.Equal(t, 16+8, PixelFormatNV12.FrameSize(4, 4))
	assert.Equal(t, 0, PixelFormatUnknown.FrameSize(4, 4))
}
