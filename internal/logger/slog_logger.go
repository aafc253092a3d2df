package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// NewSlogLogger returns a standalone JSON Logger writing to writer. It is
// used before configuration is loaded and in tests.
func NewSlogLogger(writer io.Writer, level LogLevel, timezone *time.Location) Logger {
	if writer == nil {
		writer = os.Stdout
	}
	_ = timezone // JSON records carry RFC3339 timestamps with offset

	slogLevel := parseLogLevel(string(level))
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slogLevel})

	return &moduleLogger{
		logger: slog.New(handler),
		level:  slogLevel,
	}
}

// NewConsoleLogger returns a text Logger on stdout for bootstrap output.
func NewConsoleLogger(module string, level LogLevel) Logger {
	slogLevel := parseLogLevel(string(level))
	return &moduleLogger{
		module: module,
		logger: slog.New(newTextHandler(os.Stdout, slogLevel, time.Local)),
		level:  slogLevel,
	}
}
