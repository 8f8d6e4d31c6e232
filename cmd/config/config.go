package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/errkind"
)

var (
	ErrInvalidConfig = errkind.New(errkind.Configuration, "invalid configuration")
)

type Config struct {
	LogLevel string `mapstructure:"loglevel"`
	LogFile  string `mapstructure:"logfile"`

	// How long to run the preview. Zero runs until interrupted.
	Duration time.Duration `mapstructure:"duration"`

	Video   VideoConfig   `mapstructure:"video"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Capture CaptureConfig `mapstructure:"capture"`
}

type VideoConfig struct {
	RefreshRate          float64       `mapstructure:"refreshrate"`
	FlushOnDiscontinuity bool          `mapstructure:"flushondiscontinuity"`
	CompositeTime        time.Duration `mapstructure:"compositetime"`
}

type AudioConfig struct {
	Buffers    int `mapstructure:"buffers"`
	Resolution int `mapstructure:"resolution"`

	// Silence queued on priming and underrun
	PadDuration time.Duration `mapstructure:"padduration"`
	// Audio the output device plays per wake-up
	DevicePeriod time.Duration `mapstructure:"deviceperiod"`

	// Format the output device is opened with
	SampleRate int `mapstructure:"samplerate"`
	Channels   int `mapstructure:"channels"`
	BitDepth   int `mapstructure:"bitdepth"`

	Volume float64 `mapstructure:"volume"`

	// Convert captured audio to the output format when they differ.
	// Otherwise a mismatch is a configuration error.
	Convert bool `mapstructure:"convert"`

	// "null" or "wav"
	Output  string `mapstructure:"output"`
	WAVPath string `mapstructure:"wavpath"`
}

type CaptureConfig struct {
	// "synthetic" or "wav"
	Source string `mapstructure:"source"`

	// Audio file for the "wav" source
	WAVPath string `mapstructure:"wavpath"`

	FPS      float64 `mapstructure:"fps"`
	Width    int     `mapstructure:"width"`
	Height   int     `mapstructure:"height"`
	GapEvery int     `mapstructure:"gapevery"`

	// Tone format of the "synthetic" source
	SampleRate int `mapstructure:"samplerate"`
	Channels   int `mapstructure:"channels"`
	BitDepth   int `mapstructure:"bitdepth"`

	AudioFrameDuration time.Duration `mapstructure:"audioframeduration"`
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("duration", time.Duration(0))

	v.SetDefault("video.refreshrate", 60.0)
	v.SetDefault("video.flushondiscontinuity", true)
	v.SetDefault("video.compositetime", 4*time.Millisecond)

	v.SetDefault("audio.buffers", 3)
	v.SetDefault("audio.resolution", 10)
	v.SetDefault("audio.padduration", 10*time.Millisecond)
	v.SetDefault("audio.deviceperiod", 10*time.Millisecond)
	v.SetDefault("audio.samplerate", 48000)
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.bitdepth", 16)
	v.SetDefault("audio.volume", 1.0)
	v.SetDefault("audio.convert", false)
	v.SetDefault("audio.output", "null")
	v.SetDefault("audio.wavpath", "preview.wav")

	v.SetDefault("capture.source", "synthetic")
	v.SetDefault("capture.wavpath", "")
	v.SetDefault("capture.fps", 30.0)
	v.SetDefault("capture.width", 320)
	v.SetDefault("capture.height", 180)
	v.SetDefault("capture.gapevery", 0)
	v.SetDefault("capture.samplerate", 48000)
	v.SetDefault("capture.channels", 2)
	v.SetDefault("capture.bitdepth", 16)
	v.SetDefault("capture.audioframeduration", 20*time.Millisecond)
}

// Load the configuration into v from defaults, the environment
// (LIVEPREVIEW_AUDIO_VOLUME etc.) and the optional file at configFilePath.
// A missing file is not an error.
func LoadConfig(v *viper.Viper, configFilePath string) (Config, error) {
	setViperDefaults(v)

	v.SetEnvPrefix("livepreview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFilePath != "" {
		v.SetConfigFile(configFilePath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				slog.Info("no config file found", "configFilePath", configFilePath)
			} else {
				slog.Error("error during config read", "err", err)
				return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate the values the components do not check themselves.
func (c Config) Validate() error {
	var errs []error

	if _, _, err := utils.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("loglevel %q", c.LogLevel))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("negative duration %v", c.Duration))
	}
	if c.Video.RefreshRate <= 0 {
		errs = append(errs, fmt.Errorf("video.refreshrate %v", c.Video.RefreshRate))
	}
	if c.Audio.DevicePeriod <= 0 {
		errs = append(errs, fmt.Errorf("audio.deviceperiod %v", c.Audio.DevicePeriod))
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		errs = append(errs, fmt.Errorf("audio.volume %v outside [0, 1]", c.Audio.Volume))
	}

	switch c.Audio.Output {
	case "null":
	case "wav":
		if c.Audio.WAVPath == "" {
			errs = append(errs, errors.New("audio.wavpath is required for wav output"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio.output %q", c.Audio.Output))
	}

	switch c.Capture.Source {
	case "synthetic":
	case "wav":
		if c.Capture.WAVPath == "" {
			errs = append(errs, errors.New("capture.wavpath is required for wav capture"))
		}
	default:
		errs = append(errs, fmt.Errorf("capture.source %q", c.Capture.Source))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
