package audioapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
)

var (
	errNoDefaultDevice  = errors.New("no default device available")
	errNoDeviceWithID   = errors.New("no device with specified ID")
	ErrNoDeviceWithName = errkind.New(errkind.Configuration, "no device with specified name")
)

type AudioIODevice struct {
	// The ID of the device
	//
	// Intended to be the canonical way to reference the AudioIODevice
	// (e.g. a WAV file or a speaker), such that when telling the API
	// to use a device, it is this value that is used to identify the device.
	ID int

	// A human-readable name for the device. Also used to select devices
	// from configuration, so unique within an API.
	Name string

	// The format this device plays or captures.
	Format audiodevice.Format
}

func (device AudioIODevice) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ID:          %d\n", device.ID)
	fmt.Fprintf(&sb, "Name:        %s\n", device.Name)
	fmt.Fprintf(&sb, "SampleRate:  %d\n", device.Format.SampleRate)
	fmt.Fprintf(&sb, "NumChannels: %d\n", device.Format.NumChannels)
	fmt.Fprintf(&sb, "BitDepth:    %d\n", device.Format.BitDepth)
	return sb.String()
}

// Define an API to interface with audio devices.
// Intended to be an abstract way to:
// - Query existing devices (input and output)
// - Initialize an input/output device as a SourceDevice/OutputDevice respectively
type AudioIODeviceAPI interface {
	InputDevices() []AudioIODevice
	InitInputDeviceFromID(AudioIODevice) (audiodevice.SourceDevice, error)
	InitDefaultInputDevice() (audiodevice.SourceDevice, error)

	OutputDevices() []AudioIODevice
	InitOutputDeviceFromID(AudioIODevice) (audiodevice.OutputDevice, error)
	InitDefaultOutputDevice() (audiodevice.OutputDevice, error)
}

// Find the output device called name and initialize it.
func InitOutputDeviceByName(api AudioIODeviceAPI, name string) (audiodevice.OutputDevice, error) {
	for _, device := range api.OutputDevices() {
		if device.Name == name {
			return api.InitOutputDeviceFromID(device)
		}
	}
	return nil, fmt.Errorf("%w: output %q", ErrNoDeviceWithName, name)
}

// Find the input device called name and initialize it.
func InitInputDeviceByName(api AudioIODeviceAPI, name string) (audiodevice.SourceDevice, error) {
	for _, device := range api.InputDevices() {
		if device.Name == name {
			return api.InitInputDeviceFromID(device)
		}
	}
	return nil, fmt.Errorf("%w: input %q", ErrNoDeviceWithName, name)
}
