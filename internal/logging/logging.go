// Package logging builds the root zerolog logger for the relay CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// Config selects the log destinations.
type Config struct {
	// Level is one of trace, debug, info, warn, error.
	Level string
	// FilePath appends log lines to a file when set.
	FilePath string
	// GraylogAddress streams GELF messages when set (host:port).
	GraylogAddress string
	// NoConsole drops the default console writer.
	NoConsole bool
}

// Setup creates the root logger. Destinations that fail to open are
// skipped with a warning rather than aborting startup.
func Setup(cfg Config) zerolog.Logger {
	var writers []io.Writer

	if !cfg.NoConsole {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	var openErr error
	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			openErr = fmt.Errorf("failed to open log file: %w", err)
		} else {
			writers = append(writers, f)
		}
	}

	if cfg.GraylogAddress != "" {
		w, err := gelf.NewWriter(cfg.GraylogAddress)
		if err != nil {
			openErr = fmt.Errorf("failed to connect GELF writer: %w", err)
		} else {
			writers = append(writers, w)
		}
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	if openErr != nil {
		logger.Warn().Err(openErr).Msg("Some log destinations were skipped")
	}

	return logger
}

// LogFilePath builds a log file path using OS-appropriate path
// separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}
