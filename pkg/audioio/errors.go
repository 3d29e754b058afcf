package audioio

import (
	"errors"
	"fmt"
)

// Sentinel errors for the audioio package.
var (
	// ErrSourceClosed indicates the source was closed and cannot restart.
	ErrSourceClosed = errors.New("audioio: source closed")
)

// DeviceError indicates the capture device is unavailable or access was
// denied. It is user-actionable (grant microphone access, plug in a
// device) and must never trigger network reconnection.
type DeviceError struct {
	// Op is the operation that failed ("open", "start", "read").
	Op string

	// Reason describes the failure when no underlying error exists.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("audioio: device %s failed: %v", e.Op, e.Cause)
	case e.Reason != "":
		return fmt.Sprintf("audioio: device %s failed: %s", e.Op, e.Reason)
	default:
		return fmt.Sprintf("audioio: device %s failed", e.Op)
	}
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// IsDeviceError reports whether err is (or wraps) a *DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
