// Package capture defines how frames enter the pacing engine, and provides
// capture sources that need no hardware.
//
// A capture source delivers frames on its own goroutine, standing in for the
// capture device's real-time thread. Frame data passed to a Handler belongs
// to the source and is recycled as soon as the handler returns, so handlers
// must copy what they keep and must never block.
package capture

import (
	"context"
	"errors"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

var (
	ErrAlreadyStarted = errors.New("capture source already started")
)

type Handler interface {
	OnVideoFrame(f frame.Frame)
	OnAudioFrame(f frame.Frame)
}

// Adapter to use ordinary functions as a Handler. Nil functions ignore frames.
type HandlerFuncs struct {
	Video func(f frame.Frame)
	Audio func(f frame.Frame)
}

func (h HandlerFuncs) OnVideoFrame(f frame.Frame) {
	if h.Video != nil {
		h.Video(f)
	}
}

func (h HandlerFuncs) OnAudioFrame(f frame.Frame) {
	if h.Audio != nil {
		h.Audio(f)
	}
}

type Source interface {
	// Deliver frames to handler until ctx is done, the source runs out of
	// frames, or Close is called. A source can be started once.
	Start(ctx context.Context, handler Handler) error

	Close()
}
