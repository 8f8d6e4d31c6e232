package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

const wavOutputBitDepth = 16

var (
	ErrInvalidWAVFile = errors.New("error while decoding audio file")
	errNoSamples      = errors.New("non-positive samples per frame")
)

// --------------------------------------------------------------------------------
// FileSourceDevice

// Define a SourceDevice that reads a .WAV file and sends its samples on a
// stream, one frame per frameDuration, as a capture device would.
//
// The PCMFrame sent on the stream is reused for the next frame, so receivers
// must finish with it before receiving again.
type FileSourceDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	clock           clock.WithTicker
	format          audiodevice.Format
	samples         []int
	frameDuration   time.Duration
	samplesPerFrame int
	sinkStream      chan frame.PCMFrame

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// Make a new FileSourceDevice from a .WAV file (on the audioFilePath).
//
// The whole file is decoded up front. The sample rate is determined by the
// file, but the duration between frames is determined by frameDuration.
// A nil clock uses the real clock.
func NewFileSourceDevice(
	audioFilePath string,
	frameDuration time.Duration,
	c clock.WithTicker,
) (*FileSourceDevice, error) {
	id := uuid.New()
	logger := slog.Default().With(
		"file source device uuid", id,
	)
	if c == nil {
		c = clock.RealClock{}
	}

	f, err := os.Open(audioFilePath)
	if err != nil {
		logger.Error(
			"could not open audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		logger.Error(
			"could not decode audio file",
			"audioFile", audioFilePath,
			"err", decoder.Err(),
		)
		return nil, ErrInvalidWAVFile
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		logger.Error(
			"could not get full PCM buffer from audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrInvalidWAVFile, err)
	}

	format := audiodevice.Format{
		SampleRate:  int(decoder.SampleRate),
		NumChannels: int(decoder.NumChans),
		BitDepth:    int(decoder.BitDepth),
	}
	framesPerChunk := int(float64(format.SampleRate) * frameDuration.Seconds())
	samplesPerFrame := framesPerChunk * format.NumChannels
	if samplesPerFrame <= 0 {
		logger.Error(
			"non-positive samples per frame during opening of file audio source",
			"audioFile", audioFilePath,
			"sampleRate", format.SampleRate,
			"channels", format.NumChannels,
			"samplesPerFrame", samplesPerFrame,
		)
		return nil, errNoSamples
	}

	logger.Debug(
		"loaded audio file",
		"audioFile", audioFilePath,
		"sampleRate", format.SampleRate,
		"channels", format.NumChannels,
		"bitDepth", format.BitDepth,
		"samplesPerFrame", samplesPerFrame,
	)

	return &FileSourceDevice{
		logger:          logger,
		uuid:            id,
		clock:           c,
		format:          format,
		samples:         buf.Data,
		frameDuration:   frameDuration,
		samplesPerFrame: samplesPerFrame,
		sinkStream:      make(chan frame.PCMFrame),
		done:            make(chan struct{}),
	}, nil
}

// Play the audio file loaded by this source device.
// If the context is canceled or the device closed, playback stops. The
// stream is closed when playback ends.
func (d *FileSourceDevice) Play(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	d.logger.Debug("playing audio")
	go d.play(ctx)
}

func (d *FileSourceDevice) play(ctx context.Context) {
	defer close(d.sinkStream)

	scale := float32(int64(1) << (d.format.BitDepth - 1))
	pcmFrame := make(frame.PCMFrame, d.samplesPerFrame)

	ticker := d.clock.NewTicker(d.frameDuration)
	defer ticker.Stop()
	for frameStart := 0; frameStart < len(d.samples); frameStart += d.samplesPerFrame {
		frameEnd := min(frameStart+d.samplesPerFrame, len(d.samples))
		for i := 0; i < frameEnd-frameStart; i += 1 {
			pcmFrame[i] = float32(d.samples[frameStart+i]) / scale
		}

		select {
		case <-ticker.C():
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}

		select {
		case d.sinkStream <- pcmFrame[:frameEnd-frameStart]:
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
	d.logger.Debug("finished playing")
}

func (d *FileSourceDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.logger.Debug("shutdown called")
	d.closed = true
	close(d.done)
	if !d.started {
		close(d.sinkStream)
	}
}

func (d *FileSourceDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

func (d *FileSourceDevice) Format() audiodevice.Format {
	return d.format
}

// --------------------------------------------------------------------------------
// WAV output

// Create a PullDevice that renders everything it plays to a 16 bit .WAV file
// at audioFilePath. The file is created when the device is opened, and is
// only valid once the device is closed.
func NewFileOutputDevice(audioFilePath string, options PullDeviceOptions) *PullDevice {
	options.Renderer = &wavRenderer{path: audioFilePath}
	return NewPullDevice(options)
}

type wavRenderer struct {
	path string

	fileHandle *os.File
	encoder    *wav.Encoder
	buf        *goaudio.IntBuffer
}

func (r *wavRenderer) Open(format audiodevice.Format) error {
	f, err := os.Create(r.path)
	if err != nil {
		return err
	}

	r.fileHandle = f
	r.encoder = wav.NewEncoder(f, format.SampleRate, wavOutputBitDepth, format.NumChannels, 1)
	r.buf = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			SampleRate:  format.SampleRate,
			NumChannels: format.NumChannels,
		},
		SourceBitDepth: wavOutputBitDepth,
	}
	return nil
}

func (r *wavRenderer) Render(samples frame.PCMFrame) error {
	const maxInt16 = float32(1<<(wavOutputBitDepth-1) - 1)

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, sample := range samples {
		r.buf.Data[i] = int(sample * maxInt16)
	}
	return r.encoder.Write(r.buf)
}

func (r *wavRenderer) Close() error {
	if r.fileHandle == nil {
		return nil
	}
	err := errors.Join(
		r.encoder.Close(),
		r.fileHandle.Sync(),
		r.fileHandle.Close(),
	)
	r.fileHandle = nil
	return err
}
