package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60.0, cfg.Video.RefreshRate)
	assert.True(t, cfg.Video.FlushOnDiscontinuity)
	assert.Equal(t, 3, cfg.Audio.Buffers)
	assert.Equal(t, 10, cfg.Audio.Resolution)
	assert.Equal(t, 10*time.Millisecond, cfg.Audio.PadDuration)
	assert.Equal(t, 10*time.Millisecond, cfg.Audio.DevicePeriod)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, "null", cfg.Audio.Output)
	assert.Equal(t, "synthetic", cfg.Capture.Source)
	assert.Equal(t, 20*time.Millisecond, cfg.Capture.AudioFrameDuration)
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livepreview.yaml")
	contents := `
loglevel: debug
duration: 5s
video:
  refreshrate: 120
audio:
  buffers: 4
  convert: true
  output: wav
  wavpath: out.wav
capture:
  gapevery: 10
  samplerate: 44100
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := LoadConfig(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Duration)
	assert.Equal(t, 120.0, cfg.Video.RefreshRate)
	assert.Equal(t, 4, cfg.Audio.Buffers)
	assert.True(t, cfg.Audio.Convert)
	assert.Equal(t, "wav", cfg.Audio.Output)
	assert.Equal(t, "out.wav", cfg.Audio.WAVPath)
	assert.Equal(t, 10, cfg.Capture.GapEvery)
	assert.Equal(t, 44100, cfg.Capture.SampleRate)
	// Untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Audio.Channels)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("LIVEPREVIEW_AUDIO_VOLUME", "0.25")

	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Audio.Volume)
}

func TestInvalidConfigIsConfigurationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	contents := `
loglevel: loud
audio:
  output: speakers
  deviceperiod: 0s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	_, err := LoadConfig(viper.New(), path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, errkind.Configuration, errkind.Of(err))
	assert.Contains(t, err.Error(), `loglevel "loud"`)
	assert.Contains(t, err.Error(), `audio.output "speakers"`)
	assert.Contains(t, err.Error(), "audio.deviceperiod 0s")
}
