package audioapi

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
)

var format = audiodevice.Format{SampleRate: 48000, NumChannels: 2, BitDepth: 16}

func TestSoftwareOutputs(t *testing.T) {
	api := NewSoftwareAudioIODeviceAPI(SoftwareAudioIODeviceAPIOptions{Format: format})
	outputs := api.OutputDevices()
	require.Len(t, outputs, 1)
	assert.Equal(t, NullOutputName, outputs[0].Name)
	assert.Contains(t, outputs[0].String(), "SampleRate:  48000")

	dev, err := api.InitDefaultOutputDevice()
	require.NoError(t, err)
	assert.IsType(t, &device.PullDevice{}, dev)

	_, err = InitOutputDeviceByName(api, WAVOutputName)
	assert.ErrorIs(t, err, ErrNoDeviceWithName)
	assert.Equal(t, errkind.Configuration, errkind.Of(err))
}

func TestSoftwareWAVOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	api := NewSoftwareAudioIODeviceAPI(SoftwareAudioIODeviceAPIOptions{
		Format:        format,
		OutputWAVPath: path,
	})
	require.Len(t, api.OutputDevices(), 2)

	dev, err := InitOutputDeviceByName(api, WAVOutputName)
	require.NoError(t, err)
	require.NoError(t, dev.Open(format, nil))
	require.NoError(t, dev.Close())
	assert.FileExists(t, path)
}

func TestSoftwareInputs(t *testing.T) {
	api := NewSoftwareAudioIODeviceAPI(SoftwareAudioIODeviceAPIOptions{Format: format})
	assert.Empty(t, api.InputDevices())
	_, err := api.InitDefaultInputDevice()
	assert.Error(t, err)

	api = NewSoftwareAudioIODeviceAPI(SoftwareAudioIODeviceAPIOptions{
		InputWAVPath: filepath.Join(t.TempDir(), "missing.wav"),
	})
	require.Len(t, api.InputDevices(), 1)
	_, err = InitInputDeviceByName(api, WAVInputName)
	assert.Error(t, err)
}
