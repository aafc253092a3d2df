package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestSlogLoggerLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelWarn, time.UTC)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown", String("stage", "capture"))
	log.Error("shown too", Error(errors.New("boom")))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, "capture", lines[0]["stage"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestModuleNamesNest(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug, time.UTC).Module("session").Module("worker")

	log.Info("cycle", Int("cycle", 3), Float64("accuracy", 0.987654))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "session.worker", lines[0]["module"])
	assert.InDelta(t, 0.988, lines[0]["accuracy"], 1e-9)
}

func TestWithAccumulatesFieldsWithoutMutatingParent(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewSlogLogger(buf, LogLevelInfo, time.UTC)
	child := base.With(String("session_id", "abc"))

	child.Info("from child")
	base.Info("from base")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "abc", lines[0]["session_id"])
	assert.NotContains(t, lines[1], "session_id")
}

func TestWithContextAddsTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.WithContext(WithTraceID(context.Background(), "trace-1")).Info("traced")
	log.WithContext(context.Background()).Info("untraced")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "trace-1", lines[0][traceIDKey])
	assert.NotContains(t, lines[1], traceIDKey)
}

func TestSensitiveFieldsAreRedacted(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.Info("connecting",
		String("password", "hunter2"),
		String("broker", "tcp://user:pw@localhost:1883"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["password"])
	assert.NotContains(t, lines[0]["broker"], "user:pw")
}

func TestCentralLoggerConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		ModuleLevels: map[string]string{"analysis": "debug"},
	}, buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	cl.Module("capture").Debug("suppressed")
	cl.Module("capture").Info("device opened", String("device", "USB Mic"))

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "INFO  [capture] device opened device=\"USB Mic\"")
}

func TestCentralLoggerModuleLevelOverride(t *testing.T) {
	buf := &bytes.Buffer{}
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"analysis": "debug", "analysis.pitch": "warn"},
	}, buf)
	require.NoError(t, err)

	analysis := cl.Module("analysis")
	analysis.Debug("window ready")
	analysis.Module("pitch").Info("hidden by override")

	out := buf.String()
	assert.Contains(t, out, "window ready")
	assert.NotContains(t, out, "hidden by override")
}

func TestCentralLoggerFileOutputIsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "app.log")

	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path},
	}, &bytes.Buffer{})
	require.NoError(t, err)

	cl.Module("session").Info("stopped", Duration("elapsed", 1500*time.Millisecond))
	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "session", rec["module"])
	assert.Equal(t, "1.5s", rec["elapsed"])
}

func TestInvalidTimezone(t *testing.T) {
	_, err := newCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"trace":   "TRACE",
		"debug":   "DEBUG",
		"info":    "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		assert.Equal(t, want, levelName(parseLogLevel(in)), in)
	}
}

func TestBufferedFileWriterFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.log")
	w, err := NewBufferedFileWriter(path, WithFlushInterval(0), WithBufferSize(1024))
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, w.Flush())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	require.NoError(t, w.Close())
	_, err = w.Write([]byte("late"))
	assert.Error(t, err)
}
