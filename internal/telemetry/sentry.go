// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
package telemetry

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/vocalcoach/internal/buildinfo"
	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

// InitState represents the initialization state of error reporting
type InitState int32

const (
	InitStateNotStarted InitState = iota
	InitStateCompleted
	InitStateDisabled
	InitStateFailed
)

func (s InitState) String() string {
	switch s {
	case InitStateNotStarted:
		return "not_started"
	case InitStateCompleted:
		return "completed"
	case InitStateDisabled:
		return "disabled"
	case InitStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultFlushTimeout bounds Flush at shutdown
const DefaultFlushTimeout = 2 * time.Second

var state atomic.Int32

// State returns the current initialization state
func State() InitState {
	return InitState(state.Load())
}

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// InitSentry initializes the Sentry SDK when reporting is enabled and
// installs the enhanced-error reporter. transport is nil outside tests.
func InitSentry(settings *conf.SentrySettings, build *buildinfo.Context, transport sentry.Transport) error {
	log := GetLogger()
	if !settings.Enabled {
		state.Store(int32(InitStateDisabled))
		log.Debug("sentry telemetry is disabled (opt-in required)")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Debug:            settings.Debug,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          build.Release(),
		BeforeSend:       beforeSend,
		Transport:        transport,
	})
	if err != nil {
		state.Store(int32(InitStateFailed))
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
		scope.SetTag("version", build.GetVersion())
	})

	errors.SetPrivacyScrubber(logger.RedactSensitiveData)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	state.Store(int32(InitStateCompleted))
	log.Info("sentry telemetry initialized", logger.String("release", build.Release()))
	return nil
}

// Shutdown detaches the error reporter and flushes pending events
func Shutdown(timeout time.Duration) bool {
	if State() != InitStateCompleted {
		return true
	}
	errors.SetTelemetryReporter(nil)
	errors.SetPrivacyScrubber(nil)
	state.Store(int32(InitStateNotStarted))
	return sentry.Flush(timeout)
}

// beforeSend strips host and user identifying data from every event
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
