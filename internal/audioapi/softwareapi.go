package audioapi

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice/device"
)

const (
	NullOutputName = "null"
	WAVOutputName  = "wav"
	WAVInputName   = "wav"
)

type SoftwareAudioIODeviceAPIOptions struct {
	// Format of the output devices
	Format audiodevice.Format

	// Interval between device pulls, normally one player buffer.
	// Zero leaves devices to be pulled by hand.
	Period time.Duration

	// Where the "wav" output writes. The "wav" output is only listed when set.
	OutputWAVPath string

	// The file the "wav" input reads. The "wav" input is only listed when set.
	InputWAVPath string

	// Duration of each frame delivered by the "wav" input
	InputFrameDuration time.Duration

	// Defaults to the real clock
	Clock clock.WithTicker
}

// An API of software devices that need no hardware:
// - "null": an output device that plays to nowhere, at real-time pace
// - "wav": an output device writing a .WAV file
// - "wav": an input device reading a .WAV file
type SoftwareAudioIODeviceAPI struct {
	options SoftwareAudioIODeviceAPIOptions
}

func NewSoftwareAudioIODeviceAPI(options SoftwareAudioIODeviceAPIOptions) SoftwareAudioIODeviceAPI {
	if options.Clock == nil {
		options.Clock = clock.RealClock{}
	}
	return SoftwareAudioIODeviceAPI{
		options: options,
	}
}

func (api SoftwareAudioIODeviceAPI) InputDevices() []AudioIODevice {
	if api.options.InputWAVPath == "" {
		return nil
	}
	return []AudioIODevice{
		{
			ID:   0,
			Name: WAVInputName,
		},
	}
}

func (api SoftwareAudioIODeviceAPI) InitInputDeviceFromID(id AudioIODevice) (audiodevice.SourceDevice, error) {
	if id.ID != 0 || api.options.InputWAVPath == "" {
		return nil, errNoDeviceWithID
	}
	return device.NewFileSourceDevice(api.options.InputWAVPath, api.options.InputFrameDuration, api.options.Clock)
}

func (api SoftwareAudioIODeviceAPI) InitDefaultInputDevice() (audiodevice.SourceDevice, error) {
	inputs := api.InputDevices()
	if len(inputs) == 0 {
		return nil, errNoDefaultDevice
	}
	return api.InitInputDeviceFromID(inputs[0])
}

func (api SoftwareAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	outputs := []AudioIODevice{
		{
			ID:     0,
			Name:   NullOutputName,
			Format: api.options.Format,
		},
	}
	if api.options.OutputWAVPath != "" {
		outputs = append(outputs, AudioIODevice{
			ID:     1,
			Name:   WAVOutputName,
			Format: api.options.Format,
		})
	}
	return outputs
}

func (api SoftwareAudioIODeviceAPI) InitOutputDeviceFromID(id AudioIODevice) (audiodevice.OutputDevice, error) {
	options := device.PullDeviceOptions{
		Clock:  api.options.Clock,
		Period: api.options.Period,
	}

	switch {
	case id.ID == 0:
		return device.NewPullDevice(options), nil
	case id.ID == 1 && api.options.OutputWAVPath != "":
		return device.NewFileOutputDevice(api.options.OutputWAVPath, options), nil
	default:
		return nil, errNoDeviceWithID
	}
}

func (api SoftwareAudioIODeviceAPI) InitDefaultOutputDevice() (audiodevice.OutputDevice, error) {
	return api.InitOutputDeviceFromID(api.OutputDevices()[0])
}
