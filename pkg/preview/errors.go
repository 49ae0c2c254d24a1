package preview

import (
	"errors"
	"fmt"
)

// Platform names the platform in unsupported-operation messages.
const Platform = "web"

var (
	// ErrAlreadyStarted is returned by Start while a preview is attached.
	ErrAlreadyStarted = errors.New("camera already started")
	// ErrNotStarted is returned by Capture without an attached preview.
	ErrNotStarted = errors.New("camera not started")
	// ErrParentNotFound is returned by Start for an unknown container id.
	ErrParentNotFound = errors.New("parent element not found")
	// ErrInvalidArgument is returned for options out of range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupported matches every *UnsupportedError.
	ErrUnsupported = errors.New("operation not supported")
)

// UnsupportedError reports an operation this platform cannot perform.
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s not supported under the %s platform", e.Op, Platform)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}
