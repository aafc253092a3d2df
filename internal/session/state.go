package session

import (
	"fmt"

	"github.com/tphakala/vocalcoach/internal/errors"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrInvalidStateTransition is returned when an operation is not allowed
// in the current state. Match with errors.Is.
var ErrInvalidStateTransition = errors.New(nil).
	Component(componentSession).
	Category(errors.CategoryState).
	Context("error", "invalid state transition").
	Build()

func invalidTransition(from, to State) error {
	return errors.New(fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)).
		Component(componentSession).
		Category(errors.CategoryState).
		Context("from", from.String()).
		Context("to", to.String()).
		Build()
}
