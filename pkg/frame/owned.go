package frame

import (
	"errors"
	"sync"
)

var (
	ErrMovedOut = errors.New("frame has already been moved out")
)

// Owned is an independent copy of a Frame that is uniquely held by one owner
// until it is moved out with Take.
//
// After Take the Owned is empty: further calls to Take report ErrMovedOut
// and Peek reports false. This replaces shared pointers of ambiguous lifetime
// with an explicit hand-off.
type Owned struct {
	mu    sync.Mutex
	frame Frame
	moved bool
}

// Own deep-copies f. The copy shares no memory with the capture buffer, so
// the capture source may recycle f.Data as soon as Own returns.
func Own(f Frame) *Owned {
	return &Owned{frame: f.Clone()}
}

// Take moves the frame out of o. Only the first call succeeds.
func (o *Owned) Take() (Frame, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.moved {
		return Frame{}, ErrMovedOut
	}
	f := o.frame
	o.frame = Frame{}
	o.moved = true
	return f, nil
}

// Peek returns the timing metadata of the held frame without moving it.
// The returned Frame has no Data.
func (o *Owned) Peek() (Frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.moved {
		return Frame{}, false
	}
	meta := o.frame
	meta.Data = nil
	return meta, true
}

// Release drops the held frame without handing it to anyone.
func (o *Owned) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frame = Frame{}
	o.moved = true
}

func (o *Owned) Moved() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.moved
}
