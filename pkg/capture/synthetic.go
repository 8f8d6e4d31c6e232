package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

var (
	ErrInvalidSyntheticOptions = errors.New("invalid synthetic source options")
)

type SyntheticOptions struct {
	// Defaults to the real clock
	Clock clock.WithTicker

	// Video frames per second. Zero disables video.
	FPS    float64
	Width  int
	Height int

	// Audio format of the generated tone. A zero SampleRate disables audio.
	AudioFormat        audiodevice.Format
	AudioFrameDuration time.Duration

	// Skip one frame's worth of video time after every GapEvery frames,
	// as a capture device does when it drops input. Zero never skips.
	GapEvery int
}

type SyntheticStats struct {
	VideoFrames uint64
	AudioFrames uint64
	Gaps        uint64
}

// SyntheticSource is a capture source generating a moving test pattern and a
// tone, paced by a clock like a hardware device.
//
// Each stream has a single buffer that is rewritten for every frame, the
// strictest form of the capture device's buffer recycling.
type SyntheticSource struct {
	logger *slog.Logger
	uuid   uuid.UUID

	clock   clock.WithTicker
	options SyntheticOptions

	videoInterval time.Duration
	videoBuf      []byte
	videoIndex    int64

	tone          toneGenerator
	audioSamples  frame.PCMFrame
	audioBuf      []byte
	audioPosition int64

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	videoFrames atomic.Uint64
	audioFrames atomic.Uint64
	gaps        atomic.Uint64
}

func NewSyntheticSource(options SyntheticOptions) (*SyntheticSource, error) {
	if options.Clock == nil {
		options.Clock = clock.RealClock{}
	}

	s := &SyntheticSource{
		clock:   options.Clock,
		options: options,
		done:    make(chan struct{}),
	}
	s.uuid = uuid.New()
	s.logger = slog.Default().With(
		"synthetic source uuid", s.uuid,
	)

	if options.FPS < 0 || options.GapEvery < 0 {
		return nil, fmt.Errorf("%w: fps %v, gap every %d", ErrInvalidSyntheticOptions, options.FPS, options.GapEvery)
	}
	if options.FPS > 0 {
		size := frame.PixelFormatBGRA32.FrameSize(options.Width, options.Height)
		if size <= 0 {
			return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSyntheticOptions, options.Width, options.Height)
		}
		s.videoInterval = time.Duration(float64(time.Second) / options.FPS)
		s.videoBuf = make([]byte, size)
	}

	if format := options.AudioFormat; format.SampleRate > 0 {
		framesPerChunk := int(float64(format.SampleRate) * options.AudioFrameDuration.Seconds())
		if framesPerChunk <= 0 || format.NumChannels <= 0 {
			return nil, fmt.Errorf(
				"%w: %d frames per audio chunk, %d channels",
				ErrInvalidSyntheticOptions, framesPerChunk, format.NumChannels,
			)
		}
		s.tone = toneGenerator{
			sampleRate: float64(format.SampleRate),
			channels:   format.NumChannels,
		}
		s.audioSamples = make(frame.PCMFrame, framesPerChunk*format.NumChannels)
		buf, err := frame.EncodeLPCM(nil, s.audioSamples, format.BitDepth)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSyntheticOptions, err)
		}
		s.audioBuf = buf
	}

	return s, nil
}

// Start delivering frames. Blocks until ctx is done or Close is called.
func (s *SyntheticSource) Start(ctx context.Context, handler Handler) error {
	started := false
	s.startOnce.Do(func() {
		started = true
	})
	if !started {
		return ErrAlreadyStarted
	}

	var videoTick, audioTick <-chan time.Time
	if s.videoBuf != nil {
		ticker := s.clock.NewTicker(s.videoInterval)
		defer ticker.Stop()
		videoTick = ticker.C()
	}
	if s.audioBuf != nil {
		ticker := s.clock.NewTicker(s.options.AudioFrameDuration)
		defer ticker.Stop()
		audioTick = ticker.C()
	}

	s.logger.Info(
		"synthetic capture started",
		"fps", s.options.FPS,
		"width", s.options.Width,
		"height", s.options.Height,
		"sampleRate", s.options.AudioFormat.SampleRate,
		"channels", s.options.AudioFormat.NumChannels,
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-videoTick:
			handler.OnVideoFrame(s.nextVideoFrame())
		case <-audioTick:
			f, err := s.nextAudioFrame()
			if err != nil {
				return err
			}
			handler.OnAudioFrame(f)
		}
	}
}

func (s *SyntheticSource) nextVideoFrame() frame.Frame {
	index := s.videoIndex
	s.videoIndex++
	delivered := s.videoFrames.Add(1)
	if s.options.GapEvery > 0 && delivered%uint64(s.options.GapEvery) == 0 {
		s.videoIndex++
		s.gaps.Add(1)
	}

	drawTestPattern(s.videoBuf, s.options.Width, s.options.Height, index)
	return frame.Frame{
		Data:        s.videoBuf,
		PTS:         frame.FromDuration(time.Duration(index) * s.videoInterval),
		Duration:    frame.FromDuration(s.videoInterval),
		Width:       s.options.Width,
		Height:      s.options.Height,
		PixelFormat: frame.PixelFormatBGRA32,
	}
}

func (s *SyntheticSource) nextAudioFrame() (frame.Frame, error) {
	format := s.options.AudioFormat
	s.tone.fill(s.audioSamples)
	buf, err := frame.EncodeLPCM(s.audioBuf[:0], s.audioSamples, format.BitDepth)
	if err != nil {
		return frame.Frame{}, err
	}
	s.audioBuf = buf

	frames := int64(len(s.audioSamples) / format.NumChannels)
	position := s.audioPosition
	s.audioPosition += frames
	s.audioFrames.Add(1)

	return frame.Frame{
		Data:     buf,
		PTS:      frame.NewTime(position, int32(format.SampleRate)),
		Duration: frame.NewTime(frames, int32(format.SampleRate)),
	}, nil
}

// A vertical white bar sweeping across a grey background.
func drawTestPattern(buf []byte, width int, height int, index int64) {
	bar := int(index % int64(width))
	for y := range height {
		row := buf[y*width*4 : (y+1)*width*4]
		for x := range width {
			v := byte(0x40)
			if x == bar {
				v = 0xff
			}
			px := row[x*4 : x*4+4]
			px[0], px[1], px[2], px[3] = v, v, v, 0xff
		}
	}
}

func (s *SyntheticSource) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *SyntheticSource) Stats() SyntheticStats {
	return SyntheticStats{
		VideoFrames: s.videoFrames.Load(),
		AudioFrames: s.audioFrames.Load(),
		Gaps:        s.gaps.Load(),
	}
}
