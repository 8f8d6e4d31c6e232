package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/utils/clock"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/cmd/config"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/internal/preview"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/audioplayer"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/capture"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/display"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/timebase"
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/videopacer"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFilePath string

	cmd := &cobra.Command{
		Use:   "livepreview",
		Short: "Preview a capture source on a display surface and an audio output",
		Long: `Run a live preview session: frames from a capture source are paced to the
display refresh and played through a ring of audio buffers, until interrupted
or until the configured duration passes.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(v, configFilePath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFilePath, "config", "config.yaml", "Set the file path to the config file.")
	flags.String("loglevel", "info", "Log level: none, error, warn, info or debug.")
	flags.String("logfile", "", "Write logs as JSON to this file instead of the terminal.")
	flags.Duration("duration", 0, "Stop the preview after this long. Zero runs until interrupted.")
	flags.String("source", "synthetic", "Capture source: synthetic or wav.")
	flags.String("output", "null", "Audio output: null or wav.")
	flags.Float64("volume", 1, "Audio volume in [0, 1].")

	for key, flag := range map[string]string{
		"loglevel":       "loglevel",
		"logfile":        "logfile",
		"duration":       "duration",
		"capture.source": "source",
		"audio.output":   "output",
		"audio.volume":   "volume",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	closeLog, err := utils.ConfigureDefaultLogger(
		cfg.LogLevel,
		cfg.LogFile,
		slog.HandlerOptions{},
	)
	if err != nil {
		return err
	}
	defer closeLog.Close()

	// --------------------------------------------------------------------------------
	// Handle signals to shutdown gracefully on CTRL+C

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sigs:
			slog.Info("interrupted, stopping preview")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Duration > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.Duration)
		defer timeoutCancel()
	}

	// --------------------------------------------------------------------------------

	session, surface, err := newSession(cfg)
	if err != nil {
		slog.Error("could not create preview session", "err", err)
		return err
	}
	defer surface.Close()

	err = session.Run(ctx)
	logStatus(session.Status(), surface.Stats())
	if err != nil {
		slog.Error("preview session failed", "err", err)
	}
	return err
}

func newSession(cfg config.Config) (*preview.Session, *display.Surface, error) {
	realClock := clock.RealClock{}

	outputFormat := audiodevice.Format{
		SampleRate:  cfg.Audio.SampleRate,
		NumChannels: cfg.Audio.Channels,
		BitDepth:    cfg.Audio.BitDepth,
	}
	api := audioapi.NewSoftwareAudioIODeviceAPI(audioapi.SoftwareAudioIODeviceAPIOptions{
		Format:             outputFormat,
		Period:             cfg.Audio.DevicePeriod,
		OutputWAVPath:      cfg.Audio.WAVPath,
		InputWAVPath:       cfg.Capture.WAVPath,
		InputFrameDuration: cfg.Capture.AudioFrameDuration,
		Clock:              realClock,
	})

	source, captureFormat, err := newSource(cfg, api, realClock)
	if err != nil {
		return nil, nil, err
	}

	output, err := audioapi.InitOutputDeviceByName(api, cfg.Audio.Output)
	if err != nil {
		source.Close()
		return nil, nil, err
	}

	surface := display.NewSurface(timebase.NewSystemClock(realClock), cfg.Video.CompositeTime)

	pacerOptions := videopacer.DefaultOptions()
	pacerOptions.FlushOnDiscontinuity = cfg.Video.FlushOnDiscontinuity

	playerOptions := audioplayer.DefaultOptions()
	playerOptions.BufferCount = cfg.Audio.Buffers
	playerOptions.Resolution = cfg.Audio.Resolution
	playerOptions.PadDuration = cfg.Audio.PadDuration

	session, err := preview.New(source, surface, output, preview.Options{
		Clock:              realClock,
		RefreshInterval:    videopacer.IntervalForRefreshRate(cfg.Video.RefreshRate),
		Pacer:              pacerOptions,
		CaptureAudioFormat: captureFormat,
		OutputAudioFormat:  outputFormat,
		ConvertAudio:       cfg.Audio.Convert,
		Player:             playerOptions,
		Volume:             float32(cfg.Audio.Volume),
	})
	if err != nil {
		source.Close()
		output.Close()
		surface.Close()
		return nil, nil, err
	}
	return session, surface, nil
}

func newSource(cfg config.Config, api audioapi.AudioIODeviceAPI, c clock.WithTicker) (capture.Source, audiodevice.Format, error) {
	switch cfg.Capture.Source {
	case "wav":
		input, err := audioapi.InitInputDeviceByName(api, audioapi.WAVInputName)
		if err != nil {
			return nil, audiodevice.Format{}, err
		}
		slog.Info("capturing from wav file", "path", cfg.Capture.WAVPath, "format", input.Format())
		return capture.NewAudioDeviceSource(input), input.Format(), nil

	case "synthetic":
		format := audiodevice.Format{
			SampleRate:  cfg.Capture.SampleRate,
			NumChannels: cfg.Capture.Channels,
			BitDepth:    cfg.Capture.BitDepth,
		}
		source, err := capture.NewSyntheticSource(capture.SyntheticOptions{
			Clock:              c,
			FPS:                cfg.Capture.FPS,
			Width:              cfg.Capture.Width,
			Height:             cfg.Capture.Height,
			AudioFormat:        format,
			AudioFrameDuration: cfg.Capture.AudioFrameDuration,
			GapEvery:           cfg.Capture.GapEvery,
		})
		if err != nil {
			return nil, audiodevice.Format{}, err
		}
		return source, format, nil

	default:
		return nil, audiodevice.Format{}, fmt.Errorf("%w: capture.source %q", config.ErrInvalidConfig, cfg.Capture.Source)
	}
}

func logStatus(status preview.Status, surface display.Stats) {
	slog.Info(
		"video preview summary",
		"framesCaptured", status.VideoFrames,
		"framesDropped", status.VideoDropped,
		"submitted", status.Video.Submitted,
		"replaced", status.Video.Replaced,
		"presented", status.Video.Presented,
		"late", status.Video.Late,
		"expired", status.Video.Expired,
		"discontinuities", status.Video.Discontinuities,
		"displayed", surface.Displayed,
		"stopped", status.VideoStopped,
		"err", status.VideoErr,
	)
	slog.Info(
		"audio preview summary",
		"framesCaptured", status.AudioFrames,
		"framesDropped", status.AudioDropped,
		"enqueued", status.Audio.Enqueued,
		"consumed", status.Audio.Consumed,
		"underruns", status.Audio.Underruns,
		"noFreeSlot", status.Audio.NoFreeSlot,
		"conversionFailures", status.ConversionFailures,
		"stopped", status.AudioStopped,
		"err", status.AudioErr,
	)
}
