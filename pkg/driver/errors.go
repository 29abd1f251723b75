package driver

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status represents a device subsystem result code
type Status int

// Device subsystem status codes
const (
	StatusSuccess               Status = 0
	StatusUninitialized         Status = 1
	StatusInvalidArgument       Status = 2
	StatusOutOfHostMemory       Status = 3
	StatusOutOfDeviceMemory     Status = 4
	StatusTimeout               Status = 5
	StatusInvalidOperation      Status = 6
	StatusNotFound              Status = 7
	StatusNoDeviceSlots         Status = 8
	StatusInternalFailure       Status = 9
	StatusDriverOperationFailed Status = 10
	StatusDriverTimeout         Status = 11
	StatusDriverInterrupted     Status = 12
	StatusDriverInvalidIoctl    Status = 13
	StatusNotRegistered         Status = 14
	StatusAlreadyRegistered     Status = 15
	StatusInvalidHandle         Status = 16
	StatusSizeMismatch          Status = 17
	StatusDmaFailure            Status = 18
	StatusDeviceDisconnected    Status = 19
	StatusConnectionRefused     Status = 20
)

var statusMessages = map[Status]string{
	StatusSuccess:               "success",
	StatusUninitialized:         "uninitialized",
	StatusInvalidArgument:       "invalid argument",
	StatusOutOfHostMemory:       "out of host memory",
	StatusOutOfDeviceMemory:     "out of device memory",
	StatusTimeout:               "timeout",
	StatusInvalidOperation:      "invalid operation",
	StatusNotFound:              "not found",
	StatusNoDeviceSlots:         "no free device slots",
	StatusInternalFailure:       "internal failure",
	StatusDriverOperationFailed: "driver operation failed",
	StatusDriverTimeout:         "driver timeout",
	StatusDriverInterrupted:     "driver interrupted",
	StatusDriverInvalidIoctl:    "driver invalid ioctl (version mismatch)",
	StatusNotRegistered:         "workload context not registered",
	StatusAlreadyRegistered:     "workload context already registered",
	StatusInvalidHandle:         "invalid buffer handle",
	StatusSizeMismatch:          "size mismatch",
	StatusDmaFailure:            "DMA failure",
	StatusDeviceDisconnected:    "device disconnected",
	StatusConnectionRefused:     "connection refused",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// OK reports whether the status is StatusSuccess
func (s Status) OK() bool {
	return s == StatusSuccess
}

// Err converts a status into a *DeviceError, or nil on success
func (s Status) Err(context string) error {
	if s == StatusSuccess {
		return nil
	}
	return NewError(s, context)
}

// DeviceError represents an error reported by the device subsystem
type DeviceError struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Is matches another *DeviceError carrying the same status
func (e *DeviceError) Is(target error) bool {
	var devErr *DeviceError
	if errors.As(target, &devErr) {
		return e.Status == devErr.Status
	}
	return false
}

// NewError creates a new DeviceError with the given status
func NewError(status Status, context string) *DeviceError {
	return &DeviceError{
		Status:  status,
		Context: context,
	}
}

// NewErrorWithCause creates a new DeviceError with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *DeviceError {
	return &DeviceError{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// StatusOf extracts the status carried by err, StatusSuccess for nil and
// StatusInternalFailure for errors that did not come from the subsystem
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Status
	}
	return StatusInternalFailure
}

// ErrnoToStatus converts a Linux errno to a subsystem status
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case unix.ENOMEM:
		return StatusOutOfHostMemory
	case unix.ENOBUFS, unix.ENOSPC:
		return StatusOutOfDeviceMemory
	case unix.EFAULT:
		return StatusDmaFailure
	case unix.ENODEV, unix.ENXIO, unix.ESHUTDOWN:
		return StatusDeviceDisconnected
	case unix.EBUSY:
		return StatusNoDeviceSlots
	case unix.ENOTTY:
		return StatusDriverInvalidIoctl
	case unix.ETIMEDOUT:
		return StatusDriverTimeout
	case unix.EINTR:
		return StatusDriverInterrupted
	case unix.ECONNREFUSED:
		return StatusConnectionRefused
	case unix.ENOENT:
		return StatusNotFound
	case unix.EINVAL:
		return StatusInvalidArgument
	default:
		return StatusDriverOperationFailed
	}
}

// StatusFromErrno creates a DeviceError from an errno
func StatusFromErrno(errno unix.Errno, context string) *DeviceError {
	return &DeviceError{
		Status:  ErrnoToStatus(errno),
		Context: context,
		Cause:   errno,
	}
}
