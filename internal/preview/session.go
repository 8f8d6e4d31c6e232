// Package preview owns a live preview session: it routes frames from a
// capture source to the video pacer and the audio player, drives the pacer
// from a display link, and applies the error policy that keeps the capture
// source running whatever happens downstream.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audioplayer"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/capture"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/videopacer"
)

var (
	ErrAudioFormatMismatch = errkind.New(errkind.Configuration, "capture audio format does not match output format")
	ErrAlreadyRunning      = errors.New("preview session already running")
)

type Options struct {
	// Drives the display link, and the host time of the video pacer.
	// Defaults to the real clock.
	Clock clock.WithTicker

	RefreshInterval time.Duration
	Pacer           videopacer.Options

	// Format of the captured audio
	CaptureAudioFormat audiodevice.Format

	// Format the output device is opened with
	OutputAudioFormat audiodevice.Format

	// Convert captured audio when the two formats differ, instead of failing
	ConvertAudio bool

	Player audioplayer.Options
	Volume float32
}

// Session routes capture frames to the presentation sinks.
//
// The Session is the capture source's Handler. Its handler methods never
// block and never fail: frames that cannot be presented are dropped and
// counted. A device failure stops the affected pipeline (video or audio)
// and is reported through Status; capture carries on.
type Session struct {
	logger *slog.Logger
	uuid   uuid.UUID

	source    capture.Source
	pacer     *videopacer.Pacer
	link      *videopacer.DisplayLink
	player    *audioplayer.RingPlayer
	converter *device.FormatConverter
	volume    float32

	running atomic.Bool

	videoStopped atomic.Bool
	audioStopped atomic.Bool

	videoFrames       atomic.Uint64
	videoDropped      atomic.Uint64
	audioFrames       atomic.Uint64
	audioDropped      atomic.Uint64
	conversionFailure atomic.Uint64

	mu       sync.Mutex
	videoErr error
	audioErr error
	// Set once teardown has begun; no player Stop is started after that
	tornDown bool
	stopping sync.WaitGroup
}

// Create a new Session presenting source's video on sink and its audio on
// audioOutput. A nil audioOutput previews video only.
func New(
	source capture.Source,
	sink videopacer.Sink,
	audioOutput audiodevice.OutputDevice,
	options Options,
) (*Session, error) {
	if options.Clock == nil {
		options.Clock = clock.RealClock{}
	}
	logger, id := utils.ComponentLogger(nil, "preview session")
	s := &Session{
		logger: logger,
		uuid:   id,
		source: source,
		volume: options.Volume,
	}

	host := timebase.NewSystemClock(options.Clock)
	if options.Pacer.Logger == nil {
		options.Pacer.Logger = s.logger
	}
	s.pacer = videopacer.New(sink, host, options.Pacer)

	link, err := videopacer.NewDisplayLink(options.Clock, host, options.RefreshInterval, s.onRefresh)
	if err != nil {
		return nil, errkind.Mark(err, errkind.Configuration)
	}
	s.link = link

	if audioOutput == nil {
		return s, nil
	}

	if options.CaptureAudioFormat != options.OutputAudioFormat {
		if !options.ConvertAudio {
			return nil, fmt.Errorf(
				"%w: capture %+v, output %+v",
				ErrAudioFormatMismatch, options.CaptureAudioFormat, options.OutputAudioFormat,
			)
		}
		converter, err := device.NewFormatConverter(options.CaptureAudioFormat, options.OutputAudioFormat)
		if err != nil {
			return nil, err
		}
		s.converter = converter
	}

	if options.Player.Logger == nil {
		options.Player.Logger = s.logger
	}
	options.Player.OnError = s.onAudioError
	player, err := audioplayer.New(options.OutputAudioFormat, audioOutput, options.Player)
	if err != nil {
		return nil, err
	}
	s.player = player

	return s, nil
}

// Run the session until ctx is done, the capture source is exhausted, or a
// component fails to start. Run tears every component down before it
// returns.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if s.player != nil {
		if err := s.player.SetVolume(s.volume); err != nil {
			return errors.Join(err, s.teardown())
		}
		if err := s.player.Start(); err != nil {
			return errors.Join(err, s.teardown())
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.link.Run(ctx)
	})
	g.Go(func() error {
		// An exhausted source ends the session
		defer cancel()
		defer s.source.Close()
		if err := s.source.Start(ctx, s); err != nil {
			return fmt.Errorf("capture source: %w", err)
		}
		return nil
	})

	s.logger.Info("preview session running")
	err := g.Wait()
	s.logger.Info("preview session finished", "err", err)
	return errors.Join(err, s.teardown())
}

func (s *Session) teardown() error {
	s.pacer.Close()
	if s.player == nil {
		return nil
	}

	s.mu.Lock()
	s.tornDown = true
	s.mu.Unlock()
	s.stopping.Wait()
	return s.player.Dispose()
}

// --------------------------------------------------------------------------------
// capture.Handler Interface

func (s *Session) OnVideoFrame(f frame.Frame) {
	s.videoFrames.Add(1)
	if s.videoStopped.Load() {
		s.videoDropped.Add(1)
		return
	}
	s.pacer.Submit(f)
}

func (s *Session) OnAudioFrame(f frame.Frame) {
	s.audioFrames.Add(1)
	if s.player == nil || s.audioStopped.Load() {
		s.audioDropped.Add(1)
		return
	}

	if s.converter != nil {
		data, err := s.converter.Convert(f.Data)
		if err != nil {
			s.conversionFailure.Add(1)
			s.audioDropped.Add(1)
			s.logger.Debug("could not convert audio frame", "err", err)
			return
		}
		f.Data = data
	}

	err := s.player.Enqueue(f)
	switch {
	case err == nil:
	case errkind.IsTransient(err):
		s.audioDropped.Add(1)
		s.logger.Debug(
			"dropped audio frame",
			"pts", f.PTS,
			"err", err,
		)
	default:
		s.audioDropped.Add(1)
		s.onAudioError(err)
	}
}

// --------------------------------------------------------------------------------
// Consumers

func (s *Session) onRefresh(target, expiry uint64) {
	result := s.pacer.OnRefreshTick(target, expiry)
	switch result.Outcome {
	case videopacer.TickSinkFailed:
		s.stopVideo(result.Err)
	case videopacer.TickPresented:
		if result.Gap {
			s.logger.Debug("presented first frame after a capture gap", "pts", result.PTS)
		}
	}
}

func (s *Session) stopVideo(err error) {
	if !s.videoStopped.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.videoErr = err
	s.mu.Unlock()

	s.logger.Error(
		"video presentation failed, stopping video preview",
		"kind", errkind.Of(err),
		"err", err,
	)
	s.pacer.Close()
}

// Consumer-side audio failures arrive here from the device's goroutine,
// and producer-side device failures from OnAudioFrame.
func (s *Session) onAudioError(err error) {
	if !s.audioStopped.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.audioErr = err
	tornDown := s.tornDown
	if !tornDown {
		s.stopping.Add(1)
	}
	s.mu.Unlock()

	s.logger.Error(
		"audio playback failed, stopping audio preview",
		"kind", errkind.Of(err),
		"err", err,
	)
	// Dispose stops the player
	if tornDown {
		return
	}
	// Stop waits on the player lock, which the device goroutine reporting
	// this error may be about to take
	go func() {
		defer s.stopping.Done()
		if err := s.player.Stop(); err != nil {
			s.logger.Error("could not stop audio player", "err", err)
		}
	}()
}

// --------------------------------------------------------------------------------
// Status

type Status struct {
	Video        videopacer.Stats
	VideoFrames  uint64
	VideoDropped uint64
	VideoStopped bool
	VideoErr     error

	Audio              audioplayer.Stats
	AudioFrames        uint64
	AudioDropped       uint64
	ConversionFailures uint64
	AudioStopped       bool
	AudioErr           error
}

func (s *Session) Status() Status {
	status := Status{
		Video:              s.pacer.Stats(),
		VideoFrames:        s.videoFrames.Load(),
		VideoDropped:       s.videoDropped.Load(),
		VideoStopped:       s.videoStopped.Load(),
		AudioFrames:        s.audioFrames.Load(),
		AudioDropped:       s.audioDropped.Load(),
		ConversionFailures: s.conversionFailure.Load(),
		AudioStopped:       s.audioStopped.Load(),
	}
	if s.player != nil {
		status.Audio = s.player.Stats()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	status.VideoErr = s.videoErr
	status.AudioErr = s.audioErr
	return status
}

func (s *Session) UUID() uuid.UUID {
	return s.uuid
}
