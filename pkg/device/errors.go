package device

import "errors"

// Errors for workload and execution context operations
var (
	ErrDeviceRegistration = errors.New("device registration failed")
	ErrContextCreation    = errors.New("execution context creation failed")
	ErrStillBound         = errors.New("workload context still bound to an execution context")
	ErrNoDevices          = errors.New("no accelerator devices found")
	ErrManagerClosed      = errors.New("device manager is closed")
	ErrInvalidSelector    = errors.New("invalid device selector")
	ErrUnknownDeviceType  = errors.New("unknown device type")
)
