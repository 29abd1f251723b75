package engine

import "errors"

var (
	ErrIncompatible       = errors.New("network is not compiled for this device")
	ErrInferFailed        = errors.New("inference failed")
	ErrGeometry           = errors.New("input geometry does not match the network")
	ErrUnsupportedFormat  = errors.New("unsupported input format")
	ErrUnsupportedOutput  = errors.New("unsupported output precision")
	ErrContextUnavailable = errors.New("execution context is closed")
)
