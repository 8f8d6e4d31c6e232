package utils

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/google/uuid"
)

var (
	ErrUnexpectedLogLevel = errors.New("unexpected log level")
)

// Above every level a record can carry
const levelOff = slog.Level(math.MaxInt)

// Names accepted for the log level, quietest first.
var LogLevels = []string{"none", "error", "warn", "info", "debug"}

// ParseLogLevel maps a log level name to its slog level. "none" parses with
// enabled false.
func ParseLogLevel(name string) (level slog.Level, enabled bool, err error) {
	switch name {
	case "none":
		return 0, false, nil
	case "error":
		return slog.LevelError, true, nil
	case "warn":
		return slog.LevelWarn, true, nil
	case "info":
		return slog.LevelInfo, true, nil
	case "debug":
		return slog.LevelDebug, true, nil
	}
	return 0, false, fmt.Errorf("%w: %q, want one of %v", ErrUnexpectedLogLevel, name, LogLevels)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Install the process-wide slog logger for a preview run.
//
// Logs go to stdout as text, or as JSON to logFile (truncated) when one is
// given. At debug level every record carries its source position. The
// returned Closer flushes the log file and is always safe to close:
//
//	closeLog, err := utils.ConfigureDefaultLogger(level, file, slog.HandlerOptions{})
//	if err != nil {
//		return err
//	}
//	defer closeLog.Close()
func ConfigureDefaultLogger(logLevel string, logFile string, options slog.HandlerOptions) (io.Closer, error) {
	level, enabled, err := ParseLogLevel(logLevel)
	if err != nil {
		return nil, err
	}
	if !enabled {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: levelOff})))
		return nopCloser{}, nil
	}
	options.Level = level
	options.AddSource = options.AddSource || level == slog.LevelDebug

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &options)))
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &options)))
	return f, nil
}

// ComponentLogger derives the logger of one component instance from parent
// (slog.Default when nil), tagged with a fresh "<component> uuid" attribute.
func ComponentLogger(parent *slog.Logger, component string) (*slog.Logger, uuid.UUID) {
	if parent == nil {
		parent = slog.Default()
	}
	id := uuid.New()
	return parent.With(component+" uuid", id), id
}
