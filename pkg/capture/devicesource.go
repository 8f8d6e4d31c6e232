package capture

import (
	"context"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

// AudioDeviceSource turns the PCMFrame stream of an audiodevice.SourceDevice
// into timestamped LPCM audio frames in the device's format.
type AudioDeviceSource struct {
	device audiodevice.SourceDevice

	startOnce sync.Once
	buf       []byte
	position  int64
}

func NewAudioDeviceSource(device audiodevice.SourceDevice) *AudioDeviceSource {
	return &AudioDeviceSource{
		device: device,
	}
}

// Start delivering frames. A device with a Play method is started with ctx.
// Blocks until ctx is done or the device's stream is closed.
func (s *AudioDeviceSource) Start(ctx context.Context, handler Handler) error {
	started := false
	s.startOnce.Do(func() {
		started = true
	})
	if !started {
		return ErrAlreadyStarted
	}

	if player, ok := s.device.(interface{ Play(context.Context) }); ok {
		player.Play(ctx)
	}

	format := s.device.Format()
	stream := s.device.GetStream()
	for {
		select {
		case <-ctx.Done():
			return nil
		case pcmFrame, ok := <-stream:
			if !ok {
				return nil
			}
			buf, err := frame.EncodeLPCM(s.buf[:0], pcmFrame, format.BitDepth)
			if err != nil {
				return err
			}
			s.buf = buf

			frames := int64(len(pcmFrame) / format.NumChannels)
			handler.OnAudioFrame(frame.Frame{
				Data:     buf,
				PTS:      frame.NewTime(s.position, int32(format.SampleRate)),
				Duration: frame.NewTime(frames, int32(format.SampleRate)),
			})
			s.position += frames
		}
	}
}

func (s *AudioDeviceSource) Close() {
	s.device.Close()
}

func (s *AudioDeviceSource) Format() audiodevice.Format {
	return s.device.Format()
}
