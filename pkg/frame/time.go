package frame

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"time"
)

// Time is a rational media time: Value/Scale seconds.
//
// Capture hardware reports presentation timestamps and durations in its own
// timescale (e.g. 90000 for video, the sample rate for audio). Keeping the
// rational form avoids accumulating rounding error when frame ends are
// compared against the next frame start.
type Time struct {
	Value int64
	Scale int32
}

// Create a new Time of value units at the given scale (units per second).
// A non-positive scale yields an invalid Time.
func NewTime(value int64, scale int32) Time {
	return Time{Value: value, Scale: scale}
}

// Convert a time.Duration to a Time in nanosecond scale units.
func FromDuration(d time.Duration) Time {
	return Time{Value: int64(d), Scale: 1_000_000_000}
}

// A Time is valid only if it has a positive scale.
func (t Time) IsValid() bool {
	return t.Scale > 0
}

func (t Time) Seconds() float64 {
	if !t.IsValid() {
		return 0
	}
	return float64(t.Value) / float64(t.Scale)
}

func (t Time) Duration() time.Duration {
	return time.Duration(t.Seconds() * float64(time.Second))
}

// Add two times, rescaling to a common scale.
//
// The common scale is the least common multiple of the two scales when that
// fits a Time, and the finer of the two otherwise, in which case the coarser
// operand is rounded to the nearest unit. Sums beyond the range of a Time
// saturate. If either time is invalid the other is returned unchanged.
func (t Time) Add(other Time) Time {
	switch {
	case !t.IsValid():
		return other
	case !other.IsValid():
		return t
	case t.Scale == other.Scale:
		if sum, ok := addInt64(t.Value, other.Value); ok {
			return Time{Value: sum, Scale: t.Scale}
		}
	}

	scale := lcm(int64(t.Scale), int64(other.Scale))
	if scale > math.MaxInt32 {
		scale = int64(max(t.Scale, other.Scale))
	}
	sum := new(big.Int).Add(t.rescale(scale), other.rescale(scale))
	return Time{Value: saturate(sum), Scale: int32(scale)}
}

// Compare returns -1, 0 or +1 as t is before, equal to, or after other.
// Times at different scales are compared exactly by cross multiplication
// in 128 bits.
func (t Time) Compare(other Time) int {
	if t.Scale == other.Scale {
		return cmpInt64(t.Value, other.Value)
	}
	return cmpProducts(t.Value, uint64(max(other.Scale, 0)), other.Value, uint64(max(t.Scale, 0)))
}

func (t Time) Equal(other Time) bool {
	if !t.IsValid() || !other.IsValid() {
		return t == other
	}
	return t.Compare(other) == 0
}

func (t Time) String() string {
	return fmt.Sprintf("%d/%d", t.Value, t.Scale)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int64) int64 {
	return a / gcd(a, b) * b
}

// The value of t in units of scale, rounded half away from zero.
func (t Time) rescale(scale int64) *big.Int {
	v := big.NewInt(t.Value)
	if int64(t.Scale) == scale {
		return v
	}
	v.Mul(v, big.NewInt(scale))
	d := big.NewInt(int64(t.Scale))
	r := new(big.Int)
	v.QuoRem(v, d, r)
	if r.Sign() != 0 && new(big.Int).Lsh(r.Abs(r), 1).Cmp(d) >= 0 {
		if t.Value < 0 {
			v.Sub(v, big.NewInt(1))
		} else {
			v.Add(v, big.NewInt(1))
		}
	}
	return v
}

func saturate(v *big.Int) int64 {
	switch {
	case v.IsInt64():
		return v.Int64()
	case v.Sign() < 0:
		return math.MinInt64
	default:
		return math.MaxInt64
	}
}

func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	// Overflow flips the sign away from both operands
	return sum, (sum > a) == (b > 0)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare a*b against c*d for non-negative b and d.
func cmpProducts(a int64, b uint64, c int64, d uint64) int {
	signA, signC := productSign(a, b), productSign(c, d)
	if signA != signC || signA == 0 {
		return cmpInt64(int64(signA), int64(signC))
	}
	hiA, loA := bits.Mul64(absUint64(a), b)
	hiC, loC := bits.Mul64(absUint64(c), d)
	if hiA != hiC {
		return cmpUint64(hiA, hiC) * signA
	}
	return cmpUint64(loA, loC) * signA
}

func productSign(a int64, b uint64) int {
	switch {
	case a == 0 || b == 0:
		return 0
	case a < 0:
		return -1
	default:
		return 1
	}
}

func absUint64(a int64) uint64 {
	if a < 0 {
		return uint64(^a) + 1
	}
	return uint64(a)
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
