// Package errors wraps errors with a component, a category and free-form
// context, and hands them to optional hooks and a telemetry reporter.
package errors

import (
	"cmp"
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrorCategory groups errors for metrics and telemetry
type ErrorCategory string

const (
	CategoryGeneric        ErrorCategory = "generic"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryState          ErrorCategory = "state"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryFileParsing    ErrorCategory = "file-parsing"
	CategoryDatabase       ErrorCategory = "database"
	CategoryNetwork        ErrorCategory = "network"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"

	CategoryAudioSource   ErrorCategory = "audio-source"   // capture devices and streams
	CategoryAudioAnalysis ErrorCategory = "audio-analysis" // pitch and volume extraction
	CategoryBuffer        ErrorCategory = "audio-buffer"   // frame channel and window buffers
	CategoryTargetTrace   ErrorCategory = "target-trace"   // target melody traces
)

// Priorities accepted by ErrorBuilder.Priority
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is reported when no component was set or detected
const ComponentUnknown = "unknown"

const (
	rootModule = "github.com/tphakala/vocalcoach"
	// modulePath is skipped during call stack component detection.
	modulePath = rootModule + "/internal/errors"
)

// EnhancedError is an error plus the metadata attached by ErrorBuilder.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Priority  string // empty unless set explicitly
	Context   map[string]any
	Timestamp time.Time

	component string
	mu        sync.RWMutex
	reported  bool
}

func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category and message, so sentinels
// built with New survive wrapping. Anything else defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	other, ok := target.(*EnhancedError)
	if !ok {
		return Is(ee.Err, target)
	}
	if ee == other {
		return true
	}
	return ee.Category == other.Category && ee.Err != nil && other.Err != nil &&
		ee.Err.Error() == other.Err.Error()
}

// GetComponent returns the component recorded or detected at Build time
func (ee *EnhancedError) GetComponent() string {
	return ee.component
}

func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

func (ee *EnhancedError) GetPriority() string {
	return ee.Priority
}

// GetContext returns a copy of the context map, nil when empty
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported records that a reporter has sent this error
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	ee.reported = true
	ee.mu.Unlock()
}

func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// ErrorBuilder accumulates metadata until Build.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts a builder for err. A nil err gets a message derived from the
// context at Build, so sentinels can be declared as New(nil).Context(...).
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder for a formatted error
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the reporting package. Detected from the stack if unset.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority overrides the default priority. Unknown values become medium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any, 4)
	}
	eb.context[key] = value
	return eb
}

// FileContext describes a file without recording its path
func (eb *ErrorBuilder) FileContext(filePath string, fileSize int64) *ErrorBuilder {
	if filePath != "" {
		eb.Context("file_type", pathKind(filePath))
		eb.Context("file_extension", fileExtension(filePath))
	}
	if fileSize > 0 {
		eb.Context("file_size_category", sizeBucket(fileSize))
	}
	return eb
}

// Timing records an operation and how long it ran or was allowed to run
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).
		Context("duration_ms", duration.Milliseconds())
}

// Build creates the EnhancedError. Component and category are detected
// from the call stack only while a hook or reporter is active, and the
// error is then handed to them.
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = stderrors.New(buildMessage(eb))
	}

	reporting := hasActiveReporting.Load()
	if reporting {
		if eb.component == "" {
			eb.component = detectComponent()
		}
		if eb.category == "" {
			eb.category = detectCategory(eb.err, eb.component)
		}
	}

	ee := &EnhancedError{
		Err:       eb.err,
		component: cmp.Or(eb.component, ComponentUnknown),
		Category:  cmp.Or(eb.category, CategoryGeneric),
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if reporting {
		reportToTelemetry(ee)
	}
	return ee
}

// buildMessage derives a message for builders created with a nil error,
// using the "error" or "operation" context keys when present.
func buildMessage(eb *ErrorBuilder) string {
	if msg, ok := eb.context["error"].(string); ok && msg != "" {
		return msg
	}
	if op, ok := eb.context["operation"].(string); ok && op != "" {
		return op + " failed"
	}
	if eb.category != "" {
		return string(eb.category) + " error"
	}
	return "unknown error"
}

// FileError starts a file I/O error carrying anonymized path context.
// Callers add component and operation before Build.
func FileError(err error, filePath string, fileSize int64) *ErrorBuilder {
	return New(err).
		Category(CategoryFileIO).
		FileContext(filePath, fileSize)
}

// componentPackages maps package path fragments to component names
var componentPackages = map[string]string{
	"internal/capture":       "capture",
	"internal/framechan":     "framechan",
	"internal/analysis":      "analysis",
	"internal/target":        "target",
	"internal/feedback":      "feedback",
	"internal/session":       "session",
	"internal/recording":     "recording",
	"internal/datastore":     "datastore",
	"internal/mqtt":          "mqtt",
	"internal/observability": "observability",
	"internal/telemetry":     "telemetry",
	"internal/conf":          "configuration",
}

// detectComponent walks the call stack, skipping this package, and returns
// the first frame that maps to a component.
func detectComponent() string {
	var pcs [32]uintptr
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs[:])])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, modulePath) {
			if component := lookupComponent(frame.Function); component != ComponentUnknown {
				return component
			}
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// lookupComponent maps a function name to a known component. Other
// vocalcoach functions fall back to their package name.
func lookupComponent(funcName string) string {
	for fragment, component := range componentPackages {
		if strings.Contains(funcName, fragment) {
			return component
		}
	}

	rest, ok := strings.CutPrefix(funcName, rootModule+"/")
	if !ok {
		return ComponentUnknown
	}
	pkg := rest[strings.LastIndex(rest, "/")+1:]
	if name, _, found := strings.Cut(pkg, "."); found && name != "" {
		return name
	}
	return ComponentUnknown
}

// messageCategories are checked in order against the lowercased message
var messageCategories = []struct {
	keywords []string
	category ErrorCategory
}{
	{[]string{"device"}, CategoryAudioSource},
	{[]string{"timeout", "deadline exceeded"}, CategoryTimeout},
	{[]string{"file", "open"}, CategoryFileIO},
	{[]string{"connection"}, CategoryNetwork},
	{[]string{"invalid", "validation"}, CategoryValidation},
}

var componentCategories = map[string]ErrorCategory{
	"capture":       CategoryAudioSource,
	"analysis":      CategoryAudioAnalysis,
	"framechan":     CategoryBuffer,
	"target":        CategoryTargetTrace,
	"session":       CategoryState,
	"datastore":     CategoryDatabase,
	"mqtt":          CategoryMQTTPublish,
	"configuration": CategoryConfiguration,
}

// detectCategory prefers the category of a wrapped EnhancedError, then
// keywords in the message, then the component default.
func detectCategory(err error, component string) ErrorCategory {
	var inner *EnhancedError
	if stderrors.As(err, &inner) && inner.Category != "" {
		return inner.Category
	}

	msg := strings.ToLower(err.Error())
	for _, mc := range messageCategories {
		for _, kw := range mc.keywords {
			if strings.Contains(msg, kw) {
				return mc.category
			}
		}
	}

	if category, ok := componentCategories[component]; ok {
		return category
	}
	return CategoryGeneric
}

func pathKind(path string) string {
	if filepath.IsAbs(path) || strings.ContainsAny(path, `/\`) {
		return "absolute-path"
	}
	return "relative-path"
}

func fileExtension(path string) string {
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return "none"
}

// sizeBuckets are upper bounds, checked in order
var sizeBuckets = []struct {
	below int64
	name  string
}{
	{1 << 10, "tiny"},
	{1 << 20, "small"},
	{10 << 20, "medium"},
	{100 << 20, "large"},
}

func sizeBucket(size int64) string {
	for _, b := range sizeBuckets {
		if size < b.below {
			return b.name
		}
	}
	return "very-large"
}

// NewStd returns a plain error
func NewStd(text string) error {
	return stderrors.New(text)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether err wraps an EnhancedError of category
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}

func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
