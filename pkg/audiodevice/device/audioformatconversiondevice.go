package device

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/oov/audio/resampler"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

const (
	resampleQuality = 10
)

var (
	ErrUnsupportedConversion = errkind.New(errkind.Configuration, "unsupported audio format conversion")
)

// FormatConverter converts LPCM audio from the capture format to the format
// an output device was opened with.
//
// Channel conversion is supported between mono and stereo only. Sample rate
// and bit depth conversion are supported for both.
//
// A FormatConverter keeps resampler state between calls, so one instance
// must be used for one continuous stream. It is not safe for concurrent use.
type FormatConverter struct {
	sourceFormat audiodevice.Format
	sinkFormat   audiodevice.Format

	// The functions to apply when processing the source data to sink format
	formatConversionFunctions []audioFormatConversionFunction

	samples frame.PCMFrame
	out     []byte
}

// Create a new FormatConverter from sourceFormat (the format of the audio
// being fed in) to sinkFormat (the format of the audio leaving).
func NewFormatConverter(sourceFormat audiodevice.Format, sinkFormat audiodevice.Format) (*FormatConverter, error) {
	for _, format := range []audiodevice.Format{sourceFormat, sinkFormat} {
		if format.SampleRate <= 0 || format.NumChannels <= 0 {
			return nil, fmt.Errorf("%w: %+v", ErrUnsupportedConversion, format)
		}
	}

	formatConversionFunctions := make([]audioFormatConversionFunction, 0)
	switch {
	case sourceFormat.NumChannels == sinkFormat.NumChannels:
	case sourceFormat.NumChannels == 1 && sinkFormat.NumChannels == 2:
		slog.Debug("adding mono to stereo")
		formatConversionFunctions = append(formatConversionFunctions, monoToStereo())
	case sourceFormat.NumChannels == 2 && sinkFormat.NumChannels == 1:
		slog.Debug("adding stereo to mono")
		formatConversionFunctions = append(formatConversionFunctions, stereoToMono())
	default:
		return nil, fmt.Errorf(
			"%w: %d to %d channels",
			ErrUnsupportedConversion, sourceFormat.NumChannels, sinkFormat.NumChannels,
		)
	}

	if sourceFormat.SampleRate != sinkFormat.SampleRate {
		if sinkFormat.NumChannels > 2 {
			return nil, fmt.Errorf(
				"%w: resampling %d channels",
				ErrUnsupportedConversion, sinkFormat.NumChannels,
			)
		}
		slog.Debug("adding resampler")
		formatConversionFunctions = append(formatConversionFunctions, newResampleFunction(sourceFormat, sinkFormat))
	}

	return &FormatConverter{
		sourceFormat:              sourceFormat,
		sinkFormat:                sinkFormat,
		formatConversionFunctions: formatConversionFunctions,
	}, nil
}

// Convert one buffer of source LPCM to sink LPCM.
//
// The returned slice is reused by the next call, or is data itself when
// the formats match.
func (c *FormatConverter) Convert(data []byte) ([]byte, error) {
	if c.IsIdentity() {
		return data, nil
	}
	samples, err := frame.DecodeLPCM(c.samples[:0], data, c.sourceFormat.BitDepth)
	if err != nil {
		return nil, errors.Join(ErrUnsupportedConversion, err)
	}
	c.samples = samples

	pcmFrame := samples
	for _, f := range c.formatConversionFunctions {
		pcmFrame = f(pcmFrame)
	}

	out, err := frame.EncodeLPCM(c.out[:0], pcmFrame, c.sinkFormat.BitDepth)
	if err != nil {
		return nil, errors.Join(ErrUnsupportedConversion, err)
	}
	c.out = out
	return out, nil
}

// Whether Convert changes anything at all.
func (c *FormatConverter) IsIdentity() bool {
	return len(c.formatConversionFunctions) == 0 &&
		c.sourceFormat.BitDepth == c.sinkFormat.BitDepth
}

func (c *FormatConverter) SourceFormat() audiodevice.Format {
	return c.sourceFormat
}

func (c *FormatConverter) SinkFormat() audiodevice.Format {
	return c.sinkFormat
}

// --------------------------------------------------------------------------------

// Each function owns the buffer it returns, reusing it between calls and
// growing it when a larger frame arrives.
type audioFormatConversionFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

func grow(buf frame.PCMFrame, n int) frame.PCMFrame {
	if cap(buf) < n {
		return make(frame.PCMFrame, n)
	}
	return buf[:n]
}

func monoToStereo() audioFormatConversionFunction {
	var buf frame.PCMFrame
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		buf = grow(buf, 2*len(sourceFrame))
		for i, v := range sourceFrame {
			buf[2*i] = v
			buf[2*i+1] = v
		}
		return buf
	}
}

func stereoToMono() audioFormatConversionFunction {
	var buf frame.PCMFrame
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		if len(sourceFrame)%2 == 1 {
			sourceFrame = sourceFrame[:len(sourceFrame)-1]
		}

		buf = grow(buf, len(sourceFrame)/2)
		for i := range len(sourceFrame) / 2 {
			buf[i] = (sourceFrame[2*i] + sourceFrame[2*i+1]) / 2
		}
		return buf
	}
}

// Upper bound on resampled output for n input frames, with headroom for the
// resampler's filter delay.
func resampledLength(n int, sourceRate int, sinkRate int) int {
	return n*sinkRate/sourceRate + 64
}

func newResampleFunction(sourceFormat audiodevice.Format, sinkFormat audiodevice.Format) audioFormatConversionFunction {
	if sinkFormat.NumChannels == 1 {
		r := resampler.New(1, sourceFormat.SampleRate, sinkFormat.SampleRate, resampleQuality)
		var buf frame.PCMFrame
		return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
			buf = grow(buf, resampledLength(len(sourceFrame), sourceFormat.SampleRate, sinkFormat.SampleRate))
			_, written := r.ProcessFloat32(0, sourceFrame, buf)
			return buf[:written]
		}
	}

	r := resampler.New(2, sourceFormat.SampleRate, sinkFormat.SampleRate, resampleQuality)
	var leftSourceBuf, rightSourceBuf, leftSinkBuf, rightSinkBuf, buf frame.PCMFrame
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		if len(sourceFrame)%2 == 1 {
			sourceFrame = sourceFrame[:len(sourceFrame)-1]
		}
		n := len(sourceFrame) / 2
		outLength := resampledLength(n, sourceFormat.SampleRate, sinkFormat.SampleRate)
		leftSourceBuf = grow(leftSourceBuf, n)
		rightSourceBuf = grow(rightSourceBuf, n)
		leftSinkBuf = grow(leftSinkBuf, outLength)
		rightSinkBuf = grow(rightSinkBuf, outLength)

		// Decode to planar, sourceFrame is interleaved
		for i := range n {
			leftSourceBuf[i] = sourceFrame[2*i]
			rightSourceBuf[i] = sourceFrame[2*i+1]
		}

		// Process both channels
		_, written := r.ProcessFloat32(0, leftSourceBuf, leftSinkBuf)
		r.ProcessFloat32(1, rightSourceBuf, rightSinkBuf)

		// Interleave again
		buf = grow(buf, 2*written)
		for i := range written {
			buf[2*i] = leftSinkBuf[i]
			buf[2*i+1] = rightSinkBuf[i]
		}
		return buf
	}
}
